// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package memory

import (
	"github.com/mnemo-dev/mnemo/internal/store"
)

func init() {
	store.RegisterBackend("memory", newStores)
}

func newStores(_ string, _ int) (store.VectorIndex, store.DocumentStore, error) {
	return NewVectorIndex(), NewDocumentStore(), nil
}
