// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

// Package secrets resolves provider credentials. Config values may be
// literal keys, keyring://service/key URIs backed by the OS keyring, or
// absent, in which case a provider-specific environment variable applies.
package secrets

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

// Store provides secure secret storage operations.
type Store interface {
	// Retrieve fetches the secret value for the given service and key.
	// Absence is reported via a secret.get.not_found code.
	Retrieve(service, key string) (string, error)
}

// KeyringStore implements Store using the OS keyring via zalando/go-keyring:
// Keychain on macOS, secret-service (D-Bus) on Linux, Credential Manager on
// Windows.
type KeyringStore struct{}

var _ Store = KeyringStore{}

func (KeyringStore) Retrieve(service, key string) (string, error) {
	if service == "" || key == "" {
		return "", serixerr.New(serixerr.CodeSecretInvalidInput, "secret retrieve: service and key must not be empty")
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", serixerr.Errorf(serixerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", serixerr.Wrapf(err, serixerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", serixerr.Errorf(serixerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", serixerr.Errorf(serixerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// EnvVarFor maps a provider name to its conventional API key variable.
func EnvVarFor(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// ResolveAPIKey resolves a provider credential. Precedence: an explicit
// config value (resolved through the keyring when it is a keyring:// URI),
// then the provider's environment variable. An empty result is a coded
// error; callers running in replay mode simply never ask.
func ResolveAPIKey(store Store, provider, configured string) (string, error) {
	if configured != "" {
		if !IsKeyringURI(configured) {
			return configured, nil
		}
		service, key, err := ParseKeyringURI(configured)
		if err != nil {
			return "", err
		}
		secret, err := store.Retrieve(service, key)
		if err != nil {
			return "", serixerr.Wrapf(err, serixerr.CodeSecretResolveFailure,
				"resolving keyring URI %q", configured)
		}
		return secret, nil
	}

	if fromEnv := os.Getenv(EnvVarFor(provider)); fromEnv != "" {
		return fromEnv, nil
	}

	return "", serixerr.New(serixerr.CodeProviderKeyMissing, "no API key configured",
		serixerr.FieldProvider(provider),
		serixerr.Field("env_var", EnvVarFor(provider)))
}
