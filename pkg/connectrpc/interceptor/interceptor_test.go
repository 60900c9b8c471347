package interceptor

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deepworx/go-auth0/pkg/connectrpc/deadline"
	"github.com/deepworx/go-auth0/pkg/connectrpc/jwtauth"
	"github.com/deepworx/go-auth0/pkg/introspect"
	"github.com/deepworx/go-auth0/pkg/verify"
)

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Build(DefaultConfig(), nil); !errors.Is(err, ErrAuthenticatorRequired) {
		t.Errorf("Build(nil auth) error = %v, want ErrAuthenticatorRequired", err)
	}

	cfg := DefaultConfig()
	cfg.Deadline.DefaultTimeout = 0
	if _, err := Build(cfg, &jwtauth.Authenticator{}); !errors.Is(err, deadline.ErrInvalidConfig) {
		t.Errorf("Build(bad deadline) error = %v, want deadline.ErrInvalidConfig", err)
	}
}

func TestBuild_Count(t *testing.T) {
	t.Parallel()

	chain, err := Build(DefaultConfig(), &jwtauth.Authenticator{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(chain) != 8 {
		t.Errorf("Build() returned %d interceptors, want 8", len(chain))
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	t.Parallel()

	priv, pub := newKey(t, "k1")
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		set := jwk.NewSet()
		_ = set.AddKey(pub)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(jwksSrv.Close)

	policy := verify.NewPolicy("RS256")
	policy.Audience = []string{"api"}

	auth, err := jwtauth.NewAuthenticator(context.Background(), jwtauth.Config{
		Authority: jwksSrv.URL,
		Policy:    policy,
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	chain, err := Build(DefaultConfig(), auth)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(introspect.NewHandler(connect.WithInterceptors(chain...)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+introspect.IntrospectProcedure)

	valid := sign(t, priv, "k1", map[string]any{
		"sub": "user-1",
		"aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := sign(t, priv, "k1", map[string]any{
		"sub": "user-1",
		"aud": "api",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	tests := []struct {
		name     string
		header   string
		wantCode connect.Code
	}{
		{name: "valid token", header: "Bearer " + valid},
		{name: "missing header", wantCode: connect.CodeUnauthenticated},
		{name: "expired token", header: "Bearer " + expired, wantCode: connect.CodeUnauthenticated},
		{name: "garbage token", header: "Bearer not-a-jwt", wantCode: connect.CodeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := connect.NewRequest(&emptypb.Empty{})
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}
			req.Header().Set("X-Request-ID", "e2e")

			resp, err := client.CallUnary(context.Background(), req)
			if tt.wantCode != 0 {
				if got := connect.CodeOf(err); got != tt.wantCode {
					t.Fatalf("code = %v, want %v (err %v)", got, tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CallUnary() error = %v", err)
			}
			if got := resp.Msg.GetFields()["subject"].GetStringValue(); got != "user-1" {
				t.Errorf("subject = %q, want user-1", got)
			}
		})
	}
}

func newKey(t *testing.T, kid string) (*rsa.PrivateKey, jwk.Key) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub, err := jwk.Import(&priv.PublicKey)
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	if err := pub.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	return priv, pub
}

func sign(t *testing.T, priv *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()

	tok := jwt.New()
	for k, v := range claims {
		if err := tok.Set(k, v); err != nil {
			t.Fatalf("set claim %s: %v", k, err)
		}
	}
	key, err := jwk.Import(priv)
	if err != nil {
		t.Fatalf("import private key: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256(), key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return string(signed)
}
