package verify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// DefaultLeeway is the clock skew tolerated by NewPolicy.
const DefaultLeeway = 60 * time.Second

var rsaAlgorithms = map[string]jwa.SignatureAlgorithm{
	"RS256": jwa.RS256(),
	"RS384": jwa.RS384(),
	"RS512": jwa.RS512(),
	"PS256": jwa.PS256(),
	"PS384": jwa.PS384(),
	"PS512": jwa.PS512(),
}

// SupportedAlgorithms returns the signature algorithms a Policy may allow.
func SupportedAlgorithms() []string {
	algs := make([]string, 0, len(rsaAlgorithms))
	for name := range rsaAlgorithms {
		algs = append(algs, name)
	}
	slices.Sort(algs)
	return algs
}

// Policy selects the checks applied to a token. It is passed by value and never modified.
type Policy struct {
	// Algorithms is the allow-list of signature algorithms (e.g., "RS256").
	Algorithms []string

	// ValidateExp rejects tokens whose "exp" is in the past.
	ValidateExp bool

	// ValidateNbf rejects tokens whose "nbf" is in the future.
	ValidateNbf bool

	// ValidateAud checks "aud" against Audience.
	// A present "aud" must intersect Audience; an absent one is only rejected when Audience is set.
	ValidateAud bool
	Audience    []string

	// ValidateIss checks "iss" against Issuer, with the same rules as ValidateAud.
	ValidateIss bool
	Issuer      []string

	// RequiredClaims must all be present in the payload.
	RequiredClaims []string

	// Leeway is the clock skew tolerance applied to "exp" and "nbf".
	Leeway time.Duration
}

// NewPolicy returns a Policy allowing only alg, with expiration and audience
// checks enabled, "exp" required and DefaultLeeway.
func NewPolicy(alg string) Policy {
	return Policy{
		Algorithms:     []string{alg},
		ValidateExp:    true,
		ValidateAud:    true,
		RequiredClaims: []string{"exp"},
		Leeway:         DefaultLeeway,
	}
}

// Validate reports whether the policy can ever accept a token.
func (p Policy) Validate() error {
	if len(p.Algorithms) == 0 {
		return fmt.Errorf("%w: no algorithms allowed", ErrInvalidPolicy)
	}
	for _, alg := range p.Algorithms {
		if _, ok := rsaAlgorithms[alg]; !ok {
			return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidPolicy, alg)
		}
	}
	if p.Leeway < 0 {
		return fmt.Errorf("%w: negative leeway", ErrInvalidPolicy)
	}
	return nil
}

// allows returns the jwa algorithm for name if it is RSA based and in the allow-list.
func (p Policy) allows(name string) (jwa.SignatureAlgorithm, bool) {
	alg, ok := rsaAlgorithms[name]
	return alg, ok && slices.Contains(p.Algorithms, name)
}

// check validates the claims of a verified payload against the policy, reading
// the current time from now. Returned errors wrap ErrTokenInvalid and a reason.
func (p Policy) check(payload []byte, now func() time.Time) error {
	tok, err := jwt.ParseInsecure(payload)
	if err != nil {
		return fmt.Errorf("%w: %w: %w", ErrTokenInvalid, ErrInvalidClaim, err)
	}

	validators := p.validators()
	if len(validators) == 0 {
		return nil
	}

	opts := []jwt.ValidateOption{
		jwt.WithResetValidators(true),
		jwt.WithClock(jwt.ClockFunc(now)),
		jwt.WithAcceptableSkew(p.Leeway),
	}
	for _, v := range validators {
		opts = append(opts, jwt.WithValidator(v))
	}

	if err := jwt.Validate(tok, opts...); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, validationReason(err))
	}
	return nil
}

// validators returns the jwt validators enabled by the policy, in the order
// they are reported: required claims first, then times, issuer and audience.
func (p Policy) validators() []jwt.Validator {
	var vs []jwt.Validator
	for _, name := range p.RequiredClaims {
		vs = append(vs, jwt.IsRequired(name))
	}
	if p.ValidateExp {
		vs = append(vs, jwt.IsExpirationValid())
	}
	if p.ValidateNbf {
		vs = append(vs, jwt.IsNbfValid())
	}
	if p.ValidateIss {
		vs = append(vs, memberOf(jwt.IssuerKey, p.Issuer, ErrInvalidIssuer, func(tok jwt.Token) ([]string, bool) {
			iss, ok := tok.Issuer()
			return []string{iss}, ok
		}))
	}
	if p.ValidateAud {
		vs = append(vs, memberOf(jwt.AudienceKey, p.Audience, ErrInvalidAudience, jwt.Token.Audience))
	}
	return vs
}

// memberOf requires at least one value of the claim to be in allowed.
// An absent claim is only rejected when allowed is not empty.
func memberOf(name string, allowed []string, reason error, values func(jwt.Token) ([]string, bool)) jwt.Validator {
	return jwt.ValidatorFunc(func(_ context.Context, tok jwt.Token) error {
		got, ok := values(tok)
		if !ok {
			if len(allowed) > 0 {
				return fmt.Errorf("%w: %q", ErrMissingClaim, name)
			}
			return nil
		}
		for _, v := range got {
			if slices.Contains(allowed, v) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s %v not accepted", reason, name, got)
	})
}

// validationReason pairs a jwt.Validate error with the matching reason error.
func validationReason(err error) error {
	switch {
	case errors.Is(err, jwt.TokenExpiredError()):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.TokenNotYetValidError()):
		return fmt.Errorf("%w: %w", ErrNotYetValid, err)
	case errors.Is(err, jwt.MissingRequiredClaimError()):
		return fmt.Errorf("%w: %w", ErrMissingClaim, err)
	case errors.Is(err, ErrInvalidIssuer), errors.Is(err, ErrInvalidAudience), errors.Is(err, ErrMissingClaim):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrInvalidClaim, err)
	}
}
