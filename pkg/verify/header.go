package verify

import (
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jws"
)

// Header is the unverified protected header of a token.
// It is only used to pick a verification key and must not drive authorization decisions.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// ParseHeader decodes the protected header of a compact serialized token
// without verifying its signature.
func ParseHeader(token string) (Header, error) {
	if strings.Count(token, ".") != 2 {
		return Header{}, fmt.Errorf("parse header: %w: not a compact serialization", ErrMalformedToken)
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return Header{}, fmt.Errorf("parse header: %w: %w", ErrMalformedToken, err)
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return Header{}, fmt.Errorf("parse header: %w: expected one signature, got %d", ErrMalformedToken, len(sigs))
	}

	headers := sigs[0].ProtectedHeaders()
	if headers == nil {
		return Header{}, fmt.Errorf("parse header: %w: no protected header", ErrMalformedToken)
	}

	alg, ok := headers.Algorithm()
	if !ok {
		return Header{}, fmt.Errorf("parse header: %w: missing alg", ErrMalformedToken)
	}

	var h Header
	h.Algorithm = alg.String()
	h.KeyID, _ = headers.KeyID()
	h.Type, _ = headers.Type()
	return h, nil
}
