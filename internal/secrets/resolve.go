// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package secrets

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", mnemoerr.Errorf(mnemoerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", mnemoerr.Errorf(mnemoerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Values that are not keyring URIs pass through unchanged.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Retrieve(service, key)
	if err != nil {
		return "", mnemoerr.Wrapf(err, mnemoerr.CodeSecretResolveFailure, "resolving keyring URI %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets walks all keys in a Viper instance and resolves any
// string values using the keyring:// URI scheme. This is a post-load step,
// not a decoder hook.
//
// Resolution failures are logged and the URI value is kept, so the error
// surfaces later when the config value is actually used.
func ResolveViperSecrets(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			slog.Warn("failed to resolve keyring URI, keeping original value",
				"config_key", key,
				"error", err)
			continue
		}

		v.Set(key, resolved)
	}
}

// ResolveAPIKey picks a provider credential from, in order: the configured
// value (resolving keyring:// URIs), the provider's keyring entry under
// service, and finally the environment variable envVar. An empty string
// means nothing was found.
func ResolveAPIKey(store Store, service, provider, configured, envVar string) (string, error) {
	if configured != "" {
		return ResolveKeyringURI(store, configured)
	}

	if store != nil {
		value, err := store.Retrieve(service, provider)
		if err == nil {
			return value, nil
		}
		if !mnemoerr.HasCode(err, mnemoerr.CodeSecretNotFound) {
			return "", err
		}
	}

	if envVar != "" {
		return os.Getenv(envVar), nil
	}
	return "", nil
}
