// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package dynamodb stores auth data in a DynamoDB table keyed by "id".
package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/cargo/authstore"
	"go.uber.org/zap"
)

const (
	defaultTable      = "cargo_auth"
	defaultMaxRetries = 3
)

type Config struct {
	// Table is the name of the table.
	// (Optional) Defaults to cargo_auth.
	Table string

	// Endpoint overrides the regional endpoint, e.g. for a local DynamoDB.
	// (Optional)
	Endpoint string

	Region string

	// MaxRetries is the number of attempts the SDK makes per request.
	// (Optional) Defaults to 3.
	MaxRetries int

	// AccessKey and SecretKey select static credentials. When empty the
	// default credential chain is used.
	// (Optional)
	AccessKey string
	SecretKey string

	// Key names the record.
	// (Optional) Defaults to "default".
	Key string
}

type DynamoClient struct {
	s        service
	key      string
	logger   *zap.Logger
	measures authstore.Measures
}

// NewDynamoDB builds the AWS client from config.
func NewDynamoDB(c Config, measures authstore.Measures, logger *zap.Logger) (*DynamoClient, error) {
	validateConfig(&c)

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
		config.WithRetryMaxAttempts(c.MaxRetries),
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	db := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return newDynamoClient(&executor{c: db, tableName: c.Table, now: time.Now}, c, measures, logger), nil
}

func newDynamoClient(s service, c Config, measures authstore.Measures, logger *zap.Logger) *DynamoClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoClient{
		s:        s,
		key:      authstore.Key(c.Key),
		logger:   logger,
		measures: measures,
	}
}

func (d *DynamoClient) TryLoad(ctx context.Context) (bool, []byte, error) {
	data, consumed, err := d.s.Get(ctx, d.key)
	d.consumed(authstore.LoadType, consumed)
	if errors.Is(err, errNoData) {
		d.measures.Query(authstore.LoadType, nil)
		return false, nil, nil
	}
	d.measures.Query(authstore.LoadType, err)
	if err != nil {
		return false, nil, err
	}
	return true, data, nil
}

func (d *DynamoClient) Save(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return authstore.ErrEmptyData
	}
	consumed, err := d.s.Put(ctx, d.key, data)
	d.consumed(authstore.SaveType, consumed)
	d.measures.Query(authstore.SaveType, err)
	return err
}

func (d *DynamoClient) consumed(opType string, c *types.ConsumedCapacity) {
	if c == nil {
		return
	}
	d.logger.Debug("updating consumed capacity", zap.String("type", opType))
	if c.ReadCapacityUnits != nil {
		d.measures.Consumed(opType, authstore.ReadCapacity, *c.ReadCapacityUnits)
	}
	if c.WriteCapacityUnits != nil {
		d.measures.Consumed(opType, authstore.WriteCapacity, *c.WriteCapacityUnits)
	}
	if c.ReadCapacityUnits == nil && c.WriteCapacityUnits == nil && c.CapacityUnits != nil {
		capacity := authstore.ReadCapacity
		if opType == authstore.SaveType {
			capacity = authstore.WriteCapacity
		}
		d.measures.Consumed(opType, capacity, *c.CapacityUnits)
	}
}

func validateConfig(c *Config) {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
}
