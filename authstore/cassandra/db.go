// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package cassandra stores auth data in a Cassandra or YugabyteDB table.
package cassandra

import (
	"context"
	"errors"
	"time"

	"emperror.dev/emperror"
	"github.com/gocql/gocql"
	"github.com/xmidt-org/cargo/authstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultOpTimeout             = time.Duration(10) * time.Second
	defaultDatabase              = "cargo"
	defaultTable                 = "auth_data"
	defaultNumRetries            = 0
	defaultWaitTimeMult          = 1
	defaultMaxNumberConnsPerHost = 2
	defaultPingInterval          = 5 * time.Second
)

var errNoHosts = errors.New("number of hosts must be > 0")

type Config struct {
	// Hosts to  connect to. Must have at least one
	Hosts []string

	// Database aka Keyspace for cassandra
	Database string

	// Table holding the records.
	// (Optional) Defaults to auth_data.
	Table string

	// OpTimeout
	OpTimeout time.Duration

	// SSLRootCert used for enabling tls to the cluster. SSLKey, and SSLCert must also be set.
	SSLRootCert string
	// SSLKey used for enabling tls to the cluster. SSLRootCert, and SSLCert must also be set.
	SSLKey string
	// SSLCert used for enabling tls to the cluster. SSLRootCert, and SSLRootCert must also be set.
	SSLCert string
	// If you want to verify the hostname and server cert (like a wildcard for cass cluster) then you should turn this on
	// This option is basically the inverse of InSecureSkipVerify
	// See InSecureSkipVerify in http://golang.org/pkg/crypto/tls/ for more info
	EnableHostVerification bool

	// Username to authenticate into the cluster. Password must also be provided.
	Username string
	// Password to authenticate into the cluster. Username must also be provided.
	Password string

	// NumRetries for connecting to the db
	NumRetries int

	// WaitTimeMult the amount of time to wait before retrying to connect to the db
	WaitTimeMult time.Duration

	// MaxConnsPerHost max number of connections per host
	MaxConnsPerHost int

	// PingInterval is how often the connection is checked.
	// (Optional) Defaults to 5s.
	PingInterval time.Duration

	// Key names the record.
	// (Optional) Defaults to "default".
	Key string
}

type CassandraClient struct {
	client   dbStore
	config   Config
	key      string
	logger   *zap.Logger
	measures authstore.Measures
}

// ProvideCassandra connects and pings the cluster until the application
// stops.
func ProvideCassandra(config Config, measures authstore.Measures, lc fx.Lifecycle, logger *zap.Logger) (*CassandraClient, error) {
	client, err := CreateCassandraClient(config, measures, logger)
	if err != nil {
		return nil, err
	}
	ticker := doEvery(client.config.PingInterval, func(_ time.Time) {
		if err := client.Ping(); err != nil {
			logger.Error("ping failed", zap.Error(err))
		}
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			ticker.Stop()
			client.Close()
			return nil
		},
	})
	return client, nil
}

func doEvery(d time.Duration, f func(time.Time)) *time.Ticker {
	ticker := time.NewTicker(d)
	go func() {
		for x := range ticker.C {
			f(x)
		}
	}()
	return ticker
}

func CreateCassandraClient(config Config, measures authstore.Measures, logger *zap.Logger) (*CassandraClient, error) {
	if len(config.Hosts) == 0 {
		return nil, errNoHosts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validateConfig(&config)

	clusterConfig := gocql.NewCluster(config.Hosts...)
	clusterConfig.Consistency = gocql.LocalQuorum
	clusterConfig.Keyspace = config.Database
	clusterConfig.Timeout = config.OpTimeout
	clusterConfig.NumConns = config.MaxConnsPerHost
	clusterConfig.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	// setup ssl
	if config.SSLRootCert != "" && config.SSLCert != "" && config.SSLKey != "" {
		clusterConfig.SslOpts = &gocql.SslOptions{
			CertPath:               config.SSLCert,
			KeyPath:                config.SSLKey,
			CaPath:                 config.SSLRootCert,
			EnableHostVerification: config.EnableHostVerification,
		}
	}
	// setup authentication
	if config.Username != "" && config.Password != "" {
		clusterConfig.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	session, err := connect(clusterConfig, config.Table)

	// retry if it fails
	waitTime := 1 * time.Second
	for attempt := 0; attempt < config.NumRetries && err != nil; attempt++ {
		logger.Warn("connecting to database failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(waitTime)
		session, err = connect(clusterConfig, config.Table)
		waitTime = waitTime * config.WaitTimeMult
	}
	if err != nil {
		return nil, emperror.WrapWith(err, "Connecting to database failed", "hosts", config.Hosts)
	}

	return newCassandraClient(session, config, measures, logger), nil
}

func newCassandraClient(client dbStore, config Config, measures authstore.Measures, logger *zap.Logger) *CassandraClient {
	return &CassandraClient{
		client:   client,
		config:   config,
		key:      authstore.Key(config.Key),
		logger:   logger,
		measures: measures,
	}
}

func (s *CassandraClient) TryLoad(ctx context.Context) (bool, []byte, error) {
	data, err := s.client.Get(ctx, s.key)
	if errors.Is(err, errNoData) {
		s.measures.Query(authstore.LoadType, nil)
		return false, nil, nil
	}
	s.measures.Query(authstore.LoadType, err)
	if err != nil {
		return false, nil, emperror.WrapWith(err, "Loading auth data failed", "key", s.key)
	}
	return true, data, nil
}

func (s *CassandraClient) Save(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return authstore.ErrEmptyData
	}
	err := s.client.Put(ctx, s.key, data)
	s.measures.Query(authstore.SaveType, err)
	if err != nil {
		return emperror.WrapWith(err, "Saving auth data failed", "key", s.key)
	}
	return nil
}

func (s *CassandraClient) Close() {
	s.client.Close()
}

// Ping is for pinging the database to verify that the connection is still good.
func (s *CassandraClient) Ping() error {
	err := s.client.Ping()
	s.measures.Query(authstore.PingType, err)
	if err != nil {
		return emperror.WrapWith(err, "Pinging connection failed")
	}
	return nil
}

func validateConfig(config *Config) {
	zeroDuration := time.Duration(0) * time.Second

	if config.OpTimeout == zeroDuration {
		config.OpTimeout = defaultOpTimeout
	}

	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.Table == "" {
		config.Table = defaultTable
	}
	if config.NumRetries < 0 {
		config.NumRetries = defaultNumRetries
	}
	if config.WaitTimeMult < 1 {
		config.WaitTimeMult = defaultWaitTimeMult
	}
	if config.MaxConnsPerHost <= 0 {
		config.MaxConnsPerHost = defaultMaxNumberConnsPerHost
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
}
