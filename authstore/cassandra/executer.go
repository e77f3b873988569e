// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"

	"github.com/gocql/gocql"
	"github.com/hailocab/go-hostpool"
)

type dbStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Close()
	Ping() error
}

var (
	errNoData       = errors.New("no data from query")
	errServerClosed = errors.New("server is closed")
)

type cassandraExecutor struct {
	session *gocql.Session
	table   string
}

func connect(clusterConfig *gocql.ClusterConfig, table string) (dbStore, error) {
	clusterConfig.PoolConfig.HostSelectionPolicy = gocql.HostPoolHostPolicy(hostpool.New(nil))
	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}

	return &cassandraExecutor{session: session, table: table}, nil
}

func (s *cassandraExecutor) Put(ctx context.Context, key string, data []byte) error {
	return s.session.Query("INSERT INTO "+s.table+" (id, data, updated) VALUES (?,?,toTimestamp(now()))", key, data).
		WithContext(ctx).Exec()
}

func (s *cassandraExecutor) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.session.Query("SELECT data FROM "+s.table+" WHERE id = ?", key).
		WithContext(ctx).Scan(&data)
	if errors.Is(err, gocql.ErrNotFound) || (err == nil && len(data) == 0) {
		return nil, errNoData
	}
	return data, err
}

func (s *cassandraExecutor) Close() {
	s.session.Close()
}

func (s *cassandraExecutor) Ping() error {
	if s.session.Closed() {
		return errServerClosed
	}
	return nil
}
