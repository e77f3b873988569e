// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package db selects the auth store backend from configuration.
package db

import (
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/authstore"
	"github.com/xmidt-org/cargo/authstore/cassandra"
	"github.com/xmidt-org/cargo/authstore/dynamodb"
	"github.com/xmidt-org/cargo/authstore/file"
	"github.com/xmidt-org/cargo/authstore/inmem"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConfigKey is the configuration key holding Configs.
const ConfigKey = "authStore"

// Configs names at most one backend. With none configured, auth data only
// lives as long as the process.
type Configs struct {
	Dynamo    *dynamodb.Config
	Cassandra *cassandra.Config
	File      *file.Config
}

type SetupIn struct {
	fx.In
	Configs  Configs
	Measures authstore.Measures
	LC       fx.Lifecycle
	Logger   *zap.Logger
}

func Provide() fx.Option {
	return fx.Options(
		authstore.ProvideMetrics(),
		fx.Provide(
			arrange.UnmarshalKey(ConfigKey, Configs{}),
			SetupStore,
		),
	)
}

func SetupStore(in SetupIn) (authstore.Store, error) {
	if in.Configs.Dynamo != nil {
		in.Logger.Info("using dynamodb auth store implementation")
		return dynamodb.NewDynamoDB(*in.Configs.Dynamo, in.Measures, in.Logger)
	}
	if in.Configs.Cassandra != nil {
		in.Logger.Info("using cassandra auth store implementation")
		return cassandra.ProvideCassandra(*in.Configs.Cassandra, in.Measures, in.LC, in.Logger)
	}
	if in.Configs.File != nil {
		in.Logger.Info("using file auth store implementation")
		return file.NewFile(*in.Configs.File, in.Measures, in.Logger)
	}
	in.Logger.Info("using in memory auth store implementation")
	return inmem.NewInMem(""), nil
}
