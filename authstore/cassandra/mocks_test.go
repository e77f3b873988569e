// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockDB struct {
	mock.Mock
}

func (s *mockDB) Get(ctx context.Context, key string) ([]byte, error) {
	args := s.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (s *mockDB) Put(ctx context.Context, key string, data []byte) error {
	args := s.Called(ctx, key, data)
	return args.Error(0)
}

func (s *mockDB) Close() {
	s.Called()
}

func (s *mockDB) Ping() error {
	args := s.Called()
	return args.Error(0)
}
