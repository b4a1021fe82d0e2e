// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// keysIndexSuffix is appended to the service name to form the key under
// which the JSON index of stored key names is kept. go-keyring has no native
// key enumeration, so List() reads this index instead.
const keysIndexSuffix = "::keys-index"

// KeyringStore implements Store on the OS keyring: Keychain on macOS,
// secret-service (D-Bus) on Linux, Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := requireServiceKey(service, key); err != nil {
		return err
	}

	if err := keyring.Set(service, key, value); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.addToIndex(service, key)
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := requireServiceKey(service, key); err != nil {
		return "", err
	}

	value, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", mnemoerr.Errorf(mnemoerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", mnemoerr.Wrapf(err, mnemoerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return value, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := requireServiceKey(service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return mnemoerr.Errorf(mnemoerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return mnemoerr.Wrapf(err, mnemoerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.removeFromIndex(service, key)
}

func (s *KeyringStore) List(service string) ([]string, error) {
	return s.loadIndex(service)
}

func requireServiceKey(service, key string) error {
	if service == "" {
		return mnemoerr.New(mnemoerr.CodeSecretInvalidInput, "secret service must not be empty")
	}
	if key == "" {
		return mnemoerr.New(mnemoerr.CodeSecretInvalidInput, "secret key must not be empty")
	}
	return nil
}

func (s *KeyringStore) loadIndex(service string) ([]string, error) {
	raw, err := keyring.Get(service, service+keysIndexSuffix)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeSecretListFailure, "decoding key index for service %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(service string, keys []string) error {
	indexKey := service + keysIndexSuffix

	if len(keys) == 0 {
		if delErr := keyring.Delete(service, indexKey); delErr != nil && !errors.Is(delErr, keyring.ErrNotFound) {
			slog.Debug("failed to clean up empty key index", "service", service, "error", delErr)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeSecretListFailure, "encoding key index for service %s", service)
	}

	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeSecretListFailure, "saving key index for service %s", service)
	}
	return nil
}

// addToIndex records a key in the service's index. Idempotent.
func (s *KeyringStore) addToIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}

	for _, k := range keys {
		if k == key {
			return nil
		}
	}

	return s.saveIndex(service, append(keys, key))
}

func (s *KeyringStore) removeFromIndex(service, key string) error {
	keys, err := s.loadIndex(service)
	if err != nil {
		return err
	}

	filtered := keys[:0]
	for _, k := range keys {
		if k != key {
			filtered = append(filtered, k)
		}
	}

	return s.saveIndex(service, filtered)
}
