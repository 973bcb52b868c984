// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package secrets_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuktathapliyal/serix/internal/secrets"
	serixerr "github.com/yuktathapliyal/serix/pkg/errors"
)

type fakeStore map[string]string

func (f fakeStore) Retrieve(service, key string) (string, error) {
	val, ok := f[service+"/"+key]
	if !ok {
		return "", serixerr.Errorf(serixerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return val, nil
}

func TestParseKeyringURI(t *testing.T) {
	service, key, err := secrets.ParseKeyringURI("keyring://serix/openai-api-key")
	require.NoError(t, err)
	assert.Equal(t, "serix", service)
	assert.Equal(t, "openai-api-key", key)
}

func TestParseKeyringURIRejectsMalformed(t *testing.T) {
	for _, uri := range []string{
		"keyring://",
		"keyring://serix",
		"keyring:///key",
		"keyring://serix/",
		"vault://serix/key",
	} {
		t.Run(uri, func(t *testing.T) {
			_, _, err := secrets.ParseKeyringURI(uri)
			require.Error(t, err)
			assert.Equal(t, serixerr.CodeSecretInvalidInput, serixerr.CodeOf(err))
		})
	}
}

func TestResolveAPIKeyLiteralValue(t *testing.T) {
	key, err := secrets.ResolveAPIKey(fakeStore{}, "openai", "sk-literal")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", key)
}

func TestResolveAPIKeyViaKeyring(t *testing.T) {
	store := fakeStore{"serix/openai-key": "sk-from-keyring"}
	key, err := secrets.ResolveAPIKey(store, "openai", "keyring://serix/openai-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", key)
}

func TestResolveAPIKeyKeyringMiss(t *testing.T) {
	_, err := secrets.ResolveAPIKey(fakeStore{}, "openai", "keyring://serix/missing")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeSecretResolveFailure, serixerr.CodeOf(err))
}

func TestResolveAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	key, err := secrets.ResolveAPIKey(fakeStore{}, "openai", "")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)
}

func TestResolveAPIKeyMissingEverywhere(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := secrets.ResolveAPIKey(fakeStore{}, "anthropic", "")
	require.Error(t, err)
	assert.Equal(t, serixerr.CodeProviderKeyMissing, serixerr.CodeOf(err))
}

func TestEnvVarFor(t *testing.T) {
	cases := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"acme":      "ACME_API_KEY",
	}
	for provider, want := range cases {
		assert.Equal(t, want, secrets.EnvVarFor(provider), fmt.Sprintf("provider %s", provider))
	}
}
