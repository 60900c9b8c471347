package config

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/deepworx/go-auth0/pkg/verify"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := DefaultConfig()
	if cfg.GrantType != want.GrantType {
		t.Errorf("GrantType = %q, want %q", cfg.GrantType, want.GrantType)
	}
	if cfg.HTTPTimeout != want.HTTPTimeout {
		t.Errorf("HTTPTimeout = %v, want %v", cfg.HTTPTimeout, want.HTTPTimeout)
	}
	if !slices.Equal(cfg.Verify.Algorithms, []string{"RS256"}) {
		t.Errorf("Verify.Algorithms = %v, want [RS256]", cfg.Verify.Algorithms)
	}
	if cfg.Verify.Leeway != verify.DefaultLeeway {
		t.Errorf("Verify.Leeway = %v, want %v", cfg.Verify.Leeway, verify.DefaultLeeway)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.Health.Interval != 10*time.Second {
		t.Errorf("Server.Health.Interval = %v, want 10s", cfg.Server.Health.Interval)
	}
}

func TestLoad_FileEnvAndSecrets(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "client_secret")
	writeFile(t, secretPath, "top-secret\n")

	cfgPath := filepath.Join(dir, "auth0.yaml")
	writeFile(t, cfgPath, `
domain: tenant.example.com
client_id: from-file
client_secret: file://`+secretPath+`
verify:
  audience: ["https://api.example.com"]
  leeway: 30s
log:
  level: debug
`)

	t.Setenv("AUTH0_CLIENT_ID", "from-env")
	t.Setenv("AUTH0_VERIFY__ISSUER", "https://tenant.example.com/")
	t.Setenv("AUTH0_VERIFY__ALGORITHMS", "RS256,PS256")
	t.Setenv("AUTH0_SERVER__ADDR", ":9090")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Domain != "tenant.example.com" {
		t.Errorf("Domain = %q", cfg.Domain)
	}
	if cfg.ClientID != "from-env" {
		t.Errorf("ClientID = %q, want from-env (env overrides file)", cfg.ClientID)
	}
	if cfg.ClientSecret != "top-secret" {
		t.Errorf("ClientSecret = %q, want resolved file contents", cfg.ClientSecret)
	}
	if cfg.Verify.Leeway != 30*time.Second {
		t.Errorf("Verify.Leeway = %v, want 30s", cfg.Verify.Leeway)
	}
	if !slices.Equal(cfg.Verify.Audience, []string{"https://api.example.com"}) {
		t.Errorf("Verify.Audience = %v", cfg.Verify.Audience)
	}
	if !slices.Equal(cfg.Verify.Issuer, []string{"https://tenant.example.com/"}) {
		t.Errorf("Verify.Issuer = %v", cfg.Verify.Issuer)
	}
	if !slices.Equal(cfg.Verify.Algorithms, []string{"RS256", "PS256"}) {
		t.Errorf("Verify.Algorithms = %v", cfg.Verify.Algorithms)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if err := cfg.RequireClient(); err != nil {
		t.Errorf("RequireClient() error = %v", err)
	}
	if err := cfg.RequireVerify(); err != nil {
		t.Errorf("RequireVerify() error = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid grant type", func(t *testing.T) {
		t.Setenv("AUTH0_GRANT_TYPE", "implicit")
		_, err := Load("")
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("unresolvable secret", func(t *testing.T) {
		t.Setenv("AUTH0_CLIENT_SECRET", "env://AUTH0_TEST_DOES_NOT_EXIST")
		if _, err := Load(""); err == nil {
			t.Error("expected error for unresolvable secret")
		}
	})
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"AUTH0_DOMAIN":                   "domain",
		"AUTH0_CLIENT_SECRET":            "client_secret",
		"AUTH0_VERIFY__LEEWAY":           "verify.leeway",
		"AUTH0_SERVER__HEALTH__INTERVAL": "server.health.interval",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "password grant", mutate: func(c *Config) { c.GrantType = "password" }},
		{name: "unknown grant", mutate: func(c *Config) { c.GrantType = "implicit" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTPTimeout = -time.Second }, wantErr: true},
		{name: "negative refresh", mutate: func(c *Config) { c.Verify.RefreshInterval = -time.Second }, wantErr: true},
		{name: "zero rpc deadline", mutate: func(c *Config) { c.Server.RPC.Deadline.DefaultTimeout = 0 }, wantErr: true},
		{name: "zero health interval", mutate: func(c *Config) { c.Server.Health.Interval = 0 }, wantErr: true},
		{name: "negative health timeout", mutate: func(c *Config) { c.Server.Health.Timeout = -time.Second }, wantErr: true},
		{name: "telemetry without name", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.ServiceName = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if err := cfg.RequireClient(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RequireClient() error = %v, want ErrInvalidConfig", err)
	}
	if err := cfg.RequireVerify(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RequireVerify() error = %v, want ErrInvalidConfig", err)
	}

	cfg.Domain = "tenant.example.com"
	if err := cfg.RequireVerify(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RequireVerify() without an audience error = %v, want ErrInvalidConfig", err)
	}

	cfg.Audience = "https://api.example.com"
	if err := cfg.RequireVerify(); err != nil {
		t.Errorf("RequireVerify() with the token audience error = %v", err)
	}

	cfg.Audience = ""
	cfg.Verify.ValidateAud = false
	if err := cfg.RequireVerify(); err != nil {
		t.Errorf("RequireVerify() with audience checks off error = %v", err)
	}

	cfg.Verify.Algorithms = []string{"ES256"}
	if err := cfg.RequireVerify(); !errors.Is(err, verify.ErrInvalidPolicy) {
		t.Errorf("RequireVerify() error = %v, want ErrInvalidPolicy", err)
	}
}

func TestURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		domain        string
		authority     string
		wantDomain    string
		wantAuthority string
	}{
		{name: "bare host", domain: "tenant.example.com", wantDomain: "https://tenant.example.com", wantAuthority: "https://tenant.example.com/"},
		{name: "with scheme", domain: "http://127.0.0.1:8080/", wantDomain: "http://127.0.0.1:8080/", wantAuthority: "http://127.0.0.1:8080/"},
		{name: "explicit authority", domain: "tenant.example.com", authority: "https://issuer.example.com/", wantDomain: "https://tenant.example.com", wantAuthority: "https://issuer.example.com/"},
		{name: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Config{Domain: tt.domain, Verify: VerifyConfig{Authority: tt.authority}}
			if got := cfg.DomainURL(); got != tt.wantDomain {
				t.Errorf("DomainURL() = %q, want %q", got, tt.wantDomain)
			}
			if got := cfg.AuthorityURL(); got != tt.wantAuthority {
				t.Errorf("AuthorityURL() = %q, want %q", got, tt.wantAuthority)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	p := cfg.Policy()
	if p.ValidateIss {
		t.Error("ValidateIss should be off without issuers")
	}
	if !p.ValidateExp || p.ValidateNbf || !p.ValidateAud {
		t.Errorf("unexpected toggles: %+v", p)
	}

	cfg.Verify.Issuer = []string{"https://tenant.example.com/"}
	if !cfg.Policy().ValidateIss {
		t.Error("ValidateIss should be on when issuers are configured")
	}

	cfg.Audience = "https://api.example.com"
	if got := cfg.Policy().Audience; !slices.Equal(got, []string{"https://api.example.com"}) {
		t.Errorf("Policy().Audience = %v, want the token audience", got)
	}

	cfg.Verify.Audience = []string{"https://other.example.com"}
	if got := cfg.Policy().Audience; !slices.Equal(got, []string{"https://other.example.com"}) {
		t.Errorf("Policy().Audience = %v, want verify.audience", got)
	}
}
