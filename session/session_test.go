// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cargo/model"
)

const (
	testApp      model.AppID      = 440
	testDepot    model.DepotID    = 441
	testManifest model.ManifestID = 7_000_000_000_000_000_001
)

var (
	serverA = model.Server{Host: "a.cdn.example.net", Kind: model.ServerKindCDN}
	serverB = model.Server{Host: "b.cdn.example.net", Kind: model.ServerKindCDN}

	storedAuth = model.AuthData{Username: "gordon", RefreshToken: "stored"}
	freshAuth  = model.AuthData{Username: "gordon", RefreshToken: "fresh"}
)

func mustMarshal(t *testing.T, a model.AuthData) []byte {
	data, err := a.Marshal()
	require.NoError(t, err)
	return data
}

func signedToken(t *testing.T, exp time.Time) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

type testSession struct {
	*Session
	log          *opLog
	remote       *fakeRemote
	storage      *MockAuthStorage
	intervention *fakeIntervention
}

func newTestSession(t *testing.T, config Config, measures Measures, configure func(*fakeRemote, *MockAuthStorage)) testSession {
	log := new(opLog)
	remote := newFakeRemote(log)
	remote.challengeURL = "https://login.example.net/q/1"
	remote.challengeAuth = freshAuth
	remote.credentialsAuth = freshAuth
	remote.servers = []model.Server{serverA, serverB}

	storage := &MockAuthStorage{log: log}
	if configure != nil {
		configure(remote, storage)
	}
	intervention := &fakeIntervention{log: log}

	s, err := New(config, remote, storage, intervention, measures)
	require.NoError(t, err)
	return testSession{Session: s, log: log, remote: remote, storage: storage, intervention: intervention}
}

func storedNothing(_ *fakeRemote, storage *MockAuthStorage) {
	storage.On("TryLoad", mock.Anything).Return(false, nil, nil)
	storage.On("Save", mock.Anything, mock.Anything).Return(nil)
}

func TestNew(t *testing.T) {
	remote := newFakeRemote(new(opLog))
	storage := new(MockAuthStorage)
	intervention := new(fakeIntervention)

	tcs := []struct {
		Description  string
		Config       Config
		Remote       RemoteService
		Storage      AuthStorage
		Intervention AuthInterventionHandler
		ExpectedErr  error
	}{
		{
			Description:  "Defaults",
			Remote:       remote,
			Storage:      storage,
			Intervention: intervention,
		},
		{
			Description:  "Missing remote",
			Storage:      storage,
			Intervention: intervention,
			ExpectedErr:  ErrNilRemote,
		},
		{
			Description:  "Missing storage",
			Remote:       remote,
			Intervention: intervention,
			ExpectedErr:  ErrNilStorage,
		},
		{
			Description: "Missing intervention handler",
			Remote:      remote,
			Storage:     storage,
			ExpectedErr: ErrNilIntervention,
		},
		{
			Description:  "Username without password",
			Config:       Config{Username: "gordon"},
			Remote:       remote,
			Storage:      storage,
			Intervention: intervention,
			ExpectedErr:  ErrInvalidConfig,
		},
		{
			Description:  "Negative attempts",
			Config:       Config{ManifestAttempts: -1},
			Remote:       remote,
			Storage:      storage,
			Intervention: intervention,
			ExpectedErr:  ErrInvalidConfig,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			s, err := New(tc.Config, tc.Remote, tc.Storage, tc.Intervention, Measures{})
			if tc.ExpectedErr != nil {
				assert.Nil(s)
				assert.ErrorIs(err, tc.ExpectedErr)
				return
			}
			assert.NoError(err)
			assert.Equal(Disconnected, s.State())
			assert.NotNil(s.Pool())
			assert.Equal(defaultManifestAttempts, s.config.ManifestAttempts)
			assert.Equal(defaultManifestTimeout, s.config.ManifestTimeout)
			assert.Equal(defaultReaderCacheSize, s.config.ReaderCacheSize)
			assert.Equal(defaultReaderPrefetch, s.config.ReaderPrefetch)
		})
	}
}

func TestConnectStoredAuth(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "logins"}, []string{MethodLabel, OutcomeLabel})
	s := newTestSession(t, Config{}, Measures{Logins: logins}, func(_ *fakeRemote, storage *MockAuthStorage) {
		storage.On("TryLoad", mock.Anything).Return(true, mustMarshal(t, storedAuth), nil).Once()
	})

	require.NoError(s.Connect(context.Background()))
	assert.Equal(LoggedOn, s.State())
	assert.Equal([]string{"connect", "logon:stored"}, s.log.list())
	assert.Empty(s.intervention.shown())
	assert.Eventually(func() bool {
		return testutil.ToFloat64(logins.WithLabelValues(StoredMethod, SuccessOutcome)) == 1.0
	}, time.Second, 5*time.Millisecond)
	s.storage.AssertExpectations(t)

	// already logged on
	require.NoError(s.Connect(context.Background()))
	assert.Equal(1, s.log.count("connect"))
}

func TestConnectFallsBackToChallenge(t *testing.T) {
	expiring := func(exp time.Time) string {
		return signedToken(t, exp)
	}

	tcs := []struct {
		Description string
		Configure   func(*fakeRemote, *MockAuthStorage)
		ExpectedOps []string
	}{
		{
			Description: "Nothing stored",
			Configure:   storedNothing,
			ExpectedOps: []string{"connect", "challenge", "show", "save", "logon:fresh"},
		},
		{
			Description: "Storage failure",
			Configure: func(_ *fakeRemote, storage *MockAuthStorage) {
				storage.On("TryLoad", mock.Anything).Return(false, nil, errors.New("disk on fire"))
				storage.On("Save", mock.Anything, mock.Anything).Return(nil)
			},
			ExpectedOps: []string{"connect", "challenge", "show", "save", "logon:fresh"},
		},
		{
			Description: "Unreadable stored data",
			Configure: func(_ *fakeRemote, storage *MockAuthStorage) {
				storage.On("TryLoad", mock.Anything).Return(true, []byte("{"), nil)
				storage.On("Save", mock.Anything, mock.Anything).Return(nil)
			},
			ExpectedOps: []string{"connect", "challenge", "show", "save", "logon:fresh"},
		},
		{
			Description: "Expired stored token",
			Configure: func(_ *fakeRemote, storage *MockAuthStorage) {
				old := model.AuthData{Username: "gordon", RefreshToken: expiring(time.Now().Add(-time.Hour))}
				storage.On("TryLoad", mock.Anything).Return(true, mustMarshal(t, old), nil)
				storage.On("Save", mock.Anything, mock.Anything).Return(nil)
			},
			ExpectedOps: []string{"connect", "challenge", "show", "save", "logon:fresh"},
		},
		{
			Description: "Stored token rejected",
			Configure: func(remote *fakeRemote, storage *MockAuthStorage) {
				storage.On("TryLoad", mock.Anything).Return(true, mustMarshal(t, storedAuth), nil)
				storage.On("Save", mock.Anything, mock.Anything).Return(nil)
				remote.logOn = func(a model.AuthData) []Event {
					if a.RefreshToken == storedAuth.RefreshToken {
						return []Event{EventLoggedOn{Result: model.ResultAccessDenied}}
					}
					return []Event{EventLoggedOn{Result: model.ResultOK}}
				}
			},
			ExpectedOps: []string{"connect", "logon:stored", "challenge", "show", "save", "logon:fresh"},
		},
		{
			Description: "Save failure is not fatal",
			Configure: func(_ *fakeRemote, storage *MockAuthStorage) {
				storage.On("TryLoad", mock.Anything).Return(false, nil, nil)
				storage.On("Save", mock.Anything, mock.Anything).Return(errors.New("read-only"))
			},
			ExpectedOps: []string{"connect", "challenge", "show", "save", "logon:fresh"},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			s := newTestSession(t, Config{}, Measures{}, tc.Configure)

			require.NoError(s.Connect(context.Background()))
			assert.Equal(LoggedOn, s.State())
			assert.Equal(tc.ExpectedOps, s.log.list())
			assert.Equal([]string{"https://login.example.net/q/1"}, s.intervention.shown())
			s.storage.AssertCalled(t, "Save", mock.Anything, mustMarshal(t, freshAuth))
		})
	}
}

func TestConnectChallengeURLRotation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, storage *MockAuthStorage) {
		storedNothing(remote, storage)
		remote.rotatedURLs = []string{"https://login.example.net/q/2", "https://login.example.net/q/3"}
	})

	require.NoError(s.Connect(context.Background()))
	assert.Equal([]string{
		"https://login.example.net/q/1",
		"https://login.example.net/q/2",
		"https://login.example.net/q/3",
	}, s.intervention.shown())
}

func TestConnectCredentials(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := newTestSession(t, Config{Username: "gordon", Password: "crowbar"}, Measures{}, storedNothing)

	require.NoError(s.Connect(context.Background()))
	assert.Equal([]string{"connect", "credentials:gordon:crowbar", "save", "logon:fresh"}, s.log.list())
	assert.Empty(s.intervention.shown())
}

func TestConnectChallengeError(t *testing.T) {
	assert := assert.New(t)

	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, storage *MockAuthStorage) {
		storedNothing(remote, storage)
		remote.challengeErr = errors.New("rate limited")
	})

	err := s.Connect(context.Background())
	assert.ErrorIs(err, ErrChallenge)
	assert.Equal(Connected, s.State())
	s.storage.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestConnectError(t *testing.T) {
	assert := assert.New(t)
	errDial := errors.New("dial tcp: connection refused")

	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, _ *MockAuthStorage) {
		remote.connectErr = errDial
	})

	err := s.Connect(context.Background())
	assert.ErrorIs(err, ErrConnect)
	assert.ErrorIs(err, errDial)
	assert.Equal(Disconnected, s.State())
}

func TestConnectCancelledThenRetried(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	block := make(chan struct{})
	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, storage *MockAuthStorage) {
		storedNothing(remote, storage)
		remote.pollBlocks = block
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Connect(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.Equal(Connected, s.State())

	assert.Eventually(func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.attempt == nil
	}, time.Second, 5*time.Millisecond)

	close(block)
	require.NoError(s.Connect(context.Background()))
	assert.Equal(LoggedOn, s.State())
	assert.Equal(1, s.log.count("connect"))
	assert.Equal(2, s.log.count("challenge"))
	assert.Equal(1, s.log.count("logon:fresh"))
}

func TestConnectDisconnectedDuringLogin(t *testing.T) {
	assert := assert.New(t)

	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, storage *MockAuthStorage) {
		storedNothing(remote, storage)
		remote.logOn = func(model.AuthData) []Event {
			return []Event{EventDisconnected{}}
		}
	})

	err := s.Connect(context.Background())
	assert.ErrorIs(err, ErrDisconnected)
	assert.Equal(Disconnected, s.State())
	assert.Equal(1, s.log.count("connect"))
}

func TestConnectConcurrent(t *testing.T) {
	assert := assert.New(t)
	s := newTestSession(t, Config{}, Measures{}, storedNothing)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Connect(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(err)
	}
	assert.Equal(1, s.log.count("connect"))
	assert.Equal(1, s.log.count("challenge"))
	assert.Equal(1, s.log.count("logon:fresh"))
}

func TestConnectAfterDisconnect(t *testing.T) {
	tcs := []struct {
		Description string
		Notify      bool
	}{
		{
			Description: "Disconnect event queued",
			Notify:      true,
		},
		{
			Description: "Connection lost without an event",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			s := newTestSession(t, Config{}, Measures{}, func(_ *fakeRemote, storage *MockAuthStorage) {
				storage.On("TryLoad", mock.Anything).Return(true, mustMarshal(t, storedAuth), nil)
			})

			require.NoError(s.Connect(context.Background()))
			assert.Equal(LoggedOn, s.State())

			s.remote.drop(tc.Notify)
			key, err := s.GetDepotKey(context.Background(), testApp, testDepot)
			require.NoError(err)
			assert.Equal([]byte("depot-key"), key)
			assert.Equal(LoggedOn, s.State())
			assert.Equal(2, s.log.count("connect"))
			assert.Equal(2, s.log.count("logon:stored"))
		})
	}
}

func TestLicenses(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := newTestSession(t, Config{}, Measures{}, func(remote *fakeRemote, storage *MockAuthStorage) {
		storedNothing(remote, storage)
		remote.licenses = []uint32{17, 0, 5, 17}
	})
	assert.Empty(s.Licenses())

	require.NoError(s.Connect(context.Background()))
	assert.Equal([]uint32{0, 5, 17}, s.Licenses())

	// a later list replaces the previous one
	s.remote.emit(EventLicenseList{PackageIDs: []uint32{99}})
	require.NoError(s.Connect(context.Background()))
	assert.Equal([]uint32{99}, s.Licenses())
}
