// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package inmem keeps auth data for the life of the process only.
package inmem

import (
	"context"
	"sync"

	"github.com/xmidt-org/cargo/authstore"
)

type InMem struct {
	key  string
	data map[string][]byte
	lock sync.Mutex
}

// NewInMem returns an empty store for the record named key.
func NewInMem(key string) *InMem {
	return &InMem{
		key:  authstore.Key(key),
		data: map[string][]byte{},
	}
}

func (i *InMem) TryLoad(_ context.Context) (bool, []byte, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	data, ok := i.data[i.key]
	if !ok {
		return false, nil, nil
	}
	return true, append([]byte(nil), data...), nil
}

func (i *InMem) Save(_ context.Context, data []byte) error {
	if len(data) == 0 {
		return authstore.ErrEmptyData
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	i.data[i.key] = append([]byte(nil), data...)
	return nil
}
