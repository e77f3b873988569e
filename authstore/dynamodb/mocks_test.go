// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Put(ctx context.Context, key string, data []byte) (*types.ConsumedCapacity, error) {
	args := m.Called(ctx, key, data)
	c, _ := args.Get(0).(*types.ConsumedCapacity)
	return c, args.Error(1)
}

func (m *mockService) Get(ctx context.Context, key string) ([]byte, *types.ConsumedCapacity, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	c, _ := args.Get(1).(*types.ConsumedCapacity)
	return data, c, args.Error(2)
}
