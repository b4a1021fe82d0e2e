// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newStores)
}

func newStores(dataDir string, vectorDims int) (store.VectorIndex, store.DocumentStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "creating data directory %s", dataDir)
	}

	idx, err := NewVectorIndex(filepath.Join(dataDir, "index.db"), vectorDims)
	if err != nil {
		return nil, nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "creating vector index")
	}

	docs, err := NewDocumentStore(filepath.Join(dataDir, "documents.db"))
	if err != nil {
		_ = idx.Close()
		return nil, nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "creating document store")
	}

	return idx, docs, nil
}
