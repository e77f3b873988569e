// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"time"

	"emperror.dev/emperror"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// client captures the methods of interest from the dynamoDB API. This
// should help mock API calls as well.
type client interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// service defines the dynamodb specific DAO interface. It keeps
// instrumentation orthogonal to the table access itself.
type service interface {
	Put(ctx context.Context, key string, data []byte) (*types.ConsumedCapacity, error)
	Get(ctx context.Context, key string) ([]byte, *types.ConsumedCapacity, error)
}

// Dynamo DB attribute keys
const (
	idAttributeKey = "id"
)

var (
	errNoData = errors.New("no auth data stored")

	errThrottled = errors.New("dynamodb throughput exceeded")
)

type record struct {
	ID      string `dynamodbav:"id"`
	Data    []byte `dynamodbav:"data"`
	Updated int64  `dynamodbav:"updated"`
}

// executor satisfies the service interface.
type executor struct {
	// c is the dynamodb client
	c client

	// tableName is the name of the dynamodb table
	tableName string

	now func() time.Time
}

func handleClientError(err error, table string) error {
	var throttled *types.ProvisionedThroughputExceededException
	if errors.As(err, &throttled) {
		return emperror.WrapWith(errThrottled, err.Error(), "table", table)
	}
	return emperror.WrapWith(err, "dynamodb operation failed", "table", table)
}

func (d *executor) Put(ctx context.Context, key string, data []byte) (*types.ConsumedCapacity, error) {
	av, err := attributevalue.MarshalMap(record{ID: key, Data: data, Updated: d.now().Unix()})
	if err != nil {
		return nil, err
	}

	result, err := d.c.PutItem(ctx, &dynamodb.PutItemInput{
		Item:                   av,
		TableName:              aws.String(d.tableName),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	var consumedCapacity *types.ConsumedCapacity
	if result != nil {
		consumedCapacity = result.ConsumedCapacity
	}
	if err != nil {
		return consumedCapacity, handleClientError(err, d.tableName)
	}
	return consumedCapacity, nil
}

func (d *executor) Get(ctx context.Context, key string) ([]byte, *types.ConsumedCapacity, error) {
	result, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			idAttributeKey: &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead:         aws.Bool(true),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	var consumedCapacity *types.ConsumedCapacity
	if result != nil {
		consumedCapacity = result.ConsumedCapacity
	}
	if err != nil {
		return nil, consumedCapacity, handleClientError(err, d.tableName)
	}
	if len(result.Item) == 0 {
		return nil, consumedCapacity, errNoData
	}

	var r record
	if err := attributevalue.UnmarshalMap(result.Item, &r); err != nil {
		return nil, consumedCapacity, err
	}
	if len(r.Data) == 0 {
		return nil, consumedCapacity, errNoData
	}
	return r.Data, consumedCapacity, nil
}
