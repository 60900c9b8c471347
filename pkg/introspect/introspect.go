// Package introspect serves the caller's verified identity over Connect.
//
// The procedure takes google.protobuf.Empty and answers with a
// google.protobuf.Struct, so no generated code is required. It must run
// behind the jwtauth interceptor, which places the identity in the context.
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deepworx/go-auth0/pkg/ctxutil"
)

const (
	// ServiceName is the fully-qualified name of the token service.
	ServiceName = "auth0.v1.TokenService"

	// IntrospectProcedure is the path of the Introspect RPC.
	IntrospectProcedure = "/" + ServiceName + "/Introspect"
)

// ErrNoIdentity is returned when the request context carries no verified identity.
var ErrNoIdentity = errors.New("introspect: no verified identity")

// NewHandler returns the path and handler for the token service.
func NewHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(IntrospectProcedure, connect.NewUnaryHandler(
		IntrospectProcedure,
		introspect,
		opts...,
	))
	return "/" + ServiceName + "/", mux
}

func introspect(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	id, ok := ctxutil.GetIdentity(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, ErrNoIdentity)
	}

	msg, err := Describe(id)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(msg), nil
}

// Describe renders an identity as a Struct with the fields subject, issuer,
// audience, scopes, key_id and claims.
func Describe(id ctxutil.Identity) (*structpb.Struct, error) {
	raw, err := json.Marshal(map[string]any{
		"subject":  id.Subject,
		"issuer":   id.Issuer,
		"audience": nonNil(id.Audience),
		"scopes":   nonNil(id.Scopes),
		"key_id":   id.KeyID,
		"claims":   id.Claims,
	})
	if err != nil {
		return nil, fmt.Errorf("encode identity: %w", err)
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert identity: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
