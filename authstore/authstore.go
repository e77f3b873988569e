// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package authstore holds the backends that persist the serialized login
// material between runs. Every backend stores a single record per key.
package authstore

import (
	"context"
	"errors"
)

// DefaultKey names the record when no key is configured.
const DefaultKey = "default"

// Operation types used as metric label values.
const (
	LoadType = "load"
	SaveType = "save"
	PingType = "ping"
)

var (
	ErrEmptyData = errors.New("refusing to store empty auth data")
)

// Store is the storage contract consumed by the session.
type Store interface {
	TryLoad(ctx context.Context) (bool, []byte, error)
	Save(ctx context.Context, data []byte) error
}

// Key returns k, or DefaultKey when k is empty.
func Key(k string) string {
	if k == "" {
		return DefaultKey
	}
	return k
}
