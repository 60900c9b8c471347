// Package config loads auth0ctl configuration with koanf.
//
// Sources are layered in order: struct defaults, an optional YAML file,
// AUTH0_* environment variables, then secret references. Environment keys use
// "__" for nesting, so AUTH0_VERIFY__LEEWAY sets verify.leeway.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/deepworx/go-auth0/pkg/connectrpc/interceptor"
	"github.com/deepworx/go-auth0/pkg/health"
	"github.com/deepworx/go-auth0/pkg/oauth"
	"github.com/deepworx/go-auth0/pkg/slogutil"
	"github.com/deepworx/go-auth0/pkg/telemetry"
	"github.com/deepworx/go-auth0/pkg/verify"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "AUTH0_"

// ErrInvalidConfig is returned when a loaded configuration is unusable.
var ErrInvalidConfig = errors.New("config: invalid config")

// Config is the complete auth0ctl configuration.
type Config struct {
	// Domain is the tenant base URL, e.g. "https://tenant.auth0.com".
	// A bare host name is given an https scheme.
	Domain string `koanf:"domain"`

	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	Audience     string `koanf:"audience"`

	// GrantType is "client_credentials" or "password".
	GrantType string `koanf:"grant_type"`

	// HTTPTimeout bounds token and JWKS requests.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	Verify    VerifyConfig     `koanf:"verify"`
	Log       slogutil.Config  `koanf:"log"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Server    ServerConfig     `koanf:"server"`
}

// VerifyConfig selects the checks applied to incoming tokens.
type VerifyConfig struct {
	// Authority is the issuer base URL keys are fetched from.
	// Defaults to Domain with a trailing slash.
	Authority string `koanf:"authority"`

	Algorithms     []string      `koanf:"algorithms"`
	Issuer         []string      `koanf:"issuer"`
	Audience       []string      `koanf:"audience"`
	RequiredClaims []string      `koanf:"required_claims"`
	ValidateExp    bool          `koanf:"validate_exp"`
	ValidateNbf    bool          `koanf:"validate_nbf"`
	ValidateAud    bool          `koanf:"validate_aud"`
	Leeway         time.Duration `koanf:"leeway"`

	// RefreshInterval enables background key set refresh when positive.
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// ServerConfig configures `auth0ctl serve`.
type ServerConfig struct {
	Addr            string             `koanf:"addr"`
	ShutdownTimeout time.Duration      `koanf:"shutdown_timeout"`
	Health          health.Config      `koanf:"health"`
	RPC             interceptor.Config `koanf:"rpc"`
}

// DefaultConfig returns a Config with default values.
// Domain and the client credentials have no defaults.
func DefaultConfig() Config {
	return Config{
		GrantType:   string(oauth.GrantClientCredentials),
		HTTPTimeout: 10 * time.Second,
		Verify: VerifyConfig{
			Algorithms:     []string{"RS256"},
			RequiredClaims: []string{"exp"},
			ValidateExp:    true,
			ValidateAud:    true,
			Leeway:         verify.DefaultLeeway,
		},
		Log:       slogutil.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
			Health:          health.DefaultConfig(),
			RPC:             interceptor.DefaultConfig(),
		},
	}
}

// Load reads configuration from defaults, the YAML file at path (skipped when
// path is empty), and the environment, then resolves secret references.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	if err := k.Load(SecretResolver(k), nil); err != nil {
		return Config{}, fmt.Errorf("resolve secrets: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps AUTH0_VERIFY__LEEWAY to verify.leeway.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks settings every command depends on.
func (c Config) Validate() error {
	if _, err := oauth.ParseGrantType(c.GrantType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Verify.RefreshInterval < 0 {
		return fmt.Errorf("%w: verify.refresh_interval must not be negative", ErrInvalidConfig)
	}
	if c.Server.Health.Interval <= 0 || c.Server.Health.Timeout <= 0 {
		return fmt.Errorf("%w: server.health interval and timeout must be positive", ErrInvalidConfig)
	}
	if err := c.Server.RPC.Deadline.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// RequireClient checks the settings needed to request tokens.
func (c Config) RequireClient() error {
	var missing []string
	if c.Domain == "" {
		missing = append(missing, "domain")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// RequireVerify checks the settings needed to verify tokens.
func (c Config) RequireVerify() error {
	if c.AuthorityURL() == "" {
		return fmt.Errorf("%w: verify.authority or domain is required", ErrInvalidConfig)
	}
	policy := c.Policy()
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if policy.ValidateAud && len(policy.Audience) == 0 {
		return fmt.Errorf("%w: verify.audience or audience is required when verify.validate_aud is set", ErrInvalidConfig)
	}
	return nil
}

// DomainURL returns Domain with an https scheme when it has none.
func (c Config) DomainURL() string {
	if c.Domain == "" || strings.Contains(c.Domain, "://") {
		return c.Domain
	}
	return "https://" + c.Domain
}

// AuthorityURL returns Verify.Authority, or the domain URL with a trailing slash.
func (c Config) AuthorityURL() string {
	if c.Verify.Authority != "" {
		return c.Verify.Authority
	}
	if d := c.DomainURL(); d != "" {
		return strings.TrimSuffix(d, "/") + "/"
	}
	return ""
}

// Policy builds the verification policy from Verify.
// The token request Audience is accepted when Verify.Audience is empty.
func (c Config) Policy() verify.Policy {
	v := c.Verify
	if len(v.Audience) == 0 && c.Audience != "" {
		v.Audience = []string{c.Audience}
	}
	return verify.Policy{
		Algorithms:     v.Algorithms,
		ValidateExp:    v.ValidateExp,
		ValidateNbf:    v.ValidateNbf,
		ValidateAud:    v.ValidateAud,
		Audience:       v.Audience,
		ValidateIss:    len(v.Issuer) > 0,
		Issuer:         v.Issuer,
		RequiredClaims: v.RequiredClaims,
		Leeway:         v.Leeway,
	}
}
