// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

// StorageConfig selects the storage backend and its vector dimensionality.
type StorageConfig struct {
	Backend          string
	VectorDimensions int
}
