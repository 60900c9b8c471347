package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/v2"
)

const (
	fileRefPrefix = "file://"
	envRefPrefix  = "env://"
)

// secretResolver implements koanf.Provider over the values already loaded into k.
type secretResolver struct {
	k *koanf.Koanf
}

// SecretResolver returns a koanf.Provider that replaces secret references in
// string values:
//
//	file:///run/secrets/client_secret  trimmed contents of the file
//	env://AUTH0_CLIENT_SECRET_V2        value of the environment variable
//
// Resolution fails if a referenced file is unreadable or a variable is unset.
func SecretResolver(k *koanf.Koanf) koanf.Provider {
	return &secretResolver{k: k}
}

// Read returns the loaded config with every reference resolved.
func (r *secretResolver) Read() (map[string]any, error) {
	return resolveMap(r.k.Raw())
}

// ReadBytes is not supported for this provider.
func (r *secretResolver) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: ReadBytes not supported")
}

func resolveMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, val := range m {
		switch v := val.(type) {
		case string:
			resolved, err := resolveRef(v)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", key, err)
			}
			out[key] = resolved
		case map[string]any:
			nested, err := resolveMap(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = nested
		default:
			out[key] = v
		}
	}
	return out, nil
}

func resolveRef(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, fileRefPrefix):
		path := strings.TrimPrefix(s, fileRefPrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	case strings.HasPrefix(s, envRefPrefix):
		name := strings.TrimPrefix(s, envRefPrefix)
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return v, nil
	default:
		return s, nil
	}
}
