// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package cache holds the insert-if-absent caches shared by the session and
// the server pool. Entries never expire.
package cache

import (
	"context"
	"sync"
)

// Keyed is a concurrent map whose entries are written at most once.
// Values must be immutable; a lost insert race keeps the first value.
type Keyed[K comparable, V any] struct {
	lock sync.RWMutex
	data map[K]V
}

func NewKeyed[K comparable, V any]() *Keyed[K, V] {
	return &Keyed[K, V]{data: map[K]V{}}
}

func (c *Keyed[K, V]) Load(k K) (V, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	v, ok := c.data[k]
	return v, ok
}

// LoadOrStore stores v unless k is present, and returns the value held.
func (c *Keyed[K, V]) LoadOrStore(k K, v V) V {
	c.lock.Lock()
	defer c.lock.Unlock()
	if existing, ok := c.data[k]; ok {
		return existing
	}
	c.data[k] = v
	return v
}

func (c *Keyed[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

// Fetch returns the cached value for k, or calls fetch without holding any
// lock and caches its result. hit is true when fetch was not called.
func (c *Keyed[K, V]) Fetch(ctx context.Context, k K, fetch func(context.Context) (V, error)) (v V, hit bool, err error) {
	if v, ok := c.Load(k); ok {
		return v, true, nil
	}
	v, err = fetch(ctx)
	if err != nil {
		return v, false, err
	}
	return c.LoadOrStore(k, v), false, nil
}
