// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package session owns the authenticated connection to the distribution
// network and the credentials derived from it.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xmidt-org/cargo/cache"
	"github.com/xmidt-org/cargo/model"
	"github.com/xmidt-org/cargo/serverpool"
	"go.uber.org/zap"
)

// Errors that can be returned by this package. Since most of these errors
// are returned wrapped, it is safest to use errors.Is() to check for them.
var (
	ErrNilRemote       = errors.New("a remote service is required")
	ErrNilStorage      = errors.New("an auth storage is required")
	ErrNilIntervention = errors.New("an auth intervention handler is required")
	ErrInvalidConfig   = errors.New("invalid session config")

	ErrConnect       = errors.New("failed to connect to the network")
	ErrDisconnected  = errors.New("disconnected from the network")
	ErrCallbackPump  = errors.New("failed running pending callbacks")
	ErrLogOn         = errors.New("failed submitting login")
	ErrLogOnRejected = errors.New("login rejected")
	ErrChallenge     = errors.New("interactive login failed")
	ErrChallengeURL  = errors.New("invalid login challenge url")
	ErrManifestFetch = errors.New("failed downloading manifest")
)

const (
	errWrappedFmt = "%w: %s"
	errCauseFmt   = "%w: %w"
)

// Config configures a Session.
type Config struct {
	// Username and Password enable non-interactive login when no stored
	// credentials are usable. Both or neither must be set.
	// (Optional) If left empty, the interactive challenge is used.
	Username string `validate:"required_with=Password"`
	Password string `validate:"required_with=Username"`

	// ManifestAttempts bounds the manifest download retries of the default
	// RetryPolicy.
	// (Optional) Defaults to 3.
	ManifestAttempts int `validate:"gte=0"`

	// ManifestTimeout bounds each manifest download attempt.
	// (Optional) Defaults to 10 seconds.
	ManifestTimeout time.Duration `validate:"gte=0"`

	// ReaderCacheSize is the number of chunks each file reader keeps.
	// (Optional) Defaults to 48.
	ReaderCacheSize int `validate:"gte=0"`

	// ReaderPrefetch is the number of chunks each file reader fetches ahead.
	// (Optional) Defaults to 32.
	ReaderPrefetch int `validate:"gte=0"`

	// ServerPool configures the pool of content servers.
	ServerPool serverpool.Config

	// Retry replaces the manifest download policy.
	// (Optional) Defaults to an AttemptsPolicy built from the fields above.
	Retry RetryPolicy `mapstructure:"-"`

	// Logger to be used by the session.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger `mapstructure:"-"`
}

type depotKey struct {
	app   uint32
	depot uint32
}

type requestCodeKey struct {
	app      uint32
	depot    uint32
	manifest uint64
	branch   string
}

// Session is safe for concurrent use. Every public operation first makes
// sure the session is logged on, connecting if needed.
type Session struct {
	remote       RemoteService
	storage      AuthStorage
	intervention AuthInterventionHandler
	config       Config
	logger       *zap.Logger
	measures     Measures
	retry        RetryPolicy
	now          func() time.Time

	pool         *serverpool.Pool
	depotKeys    *cache.Keyed[depotKey, []byte]
	requestCodes *cache.Keyed[requestCodeKey, uint64]

	// pump admits one goroutine at a time to RunPendingCallback.
	pump chan struct{}

	lock    sync.Mutex
	state   State
	changed chan struct{}
	attempt *loginAttempt

	// licenses holds the package ids of the last license list received.
	licenses map[uint32]struct{}
}

// New creates a disconnected Session and subscribes it to remote's events.
func New(config Config, remote RemoteService, storage AuthStorage, intervention AuthInterventionHandler, measures Measures) (*Session, error) {
	if remote == nil {
		return nil, ErrNilRemote
	}
	if storage == nil {
		return nil, ErrNilStorage
	}
	if intervention == nil {
		return nil, ErrNilIntervention
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	s := &Session{
		remote:       remote,
		storage:      storage,
		intervention: intervention,
		config:       config,
		logger:       config.Logger,
		measures:     measures,
		retry:        config.Retry,
		now:          time.Now,
		depotKeys:    cache.NewKeyed[depotKey, []byte](),
		requestCodes: cache.NewKeyed[requestCodeKey, uint64](),
		pump:         make(chan struct{}, 1),
		changed:      make(chan struct{}),
	}

	if config.ServerPool.Logger == nil {
		config.ServerPool.Logger = config.Logger
	}
	pool, err := serverpool.New(config.ServerPool, s, s, measures.Pool)
	if err != nil {
		return nil, err
	}
	s.pool = pool

	remote.Subscribe(s.handleEvent)
	return s, nil
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf(errWrappedFmt, ErrInvalidConfig, err.Error())
	}
	if config.ManifestAttempts == 0 {
		config.ManifestAttempts = defaultManifestAttempts
	}
	if config.ManifestTimeout == 0 {
		config.ManifestTimeout = defaultManifestTimeout
	}
	if config.ReaderCacheSize == 0 {
		config.ReaderCacheSize = defaultReaderCacheSize
	}
	if config.ReaderPrefetch == 0 {
		config.ReaderPrefetch = defaultReaderPrefetch
	}
	if config.Retry == nil {
		config.Retry = AttemptsPolicy{
			Attempts: config.ManifestAttempts,
			Timeout:  config.ManifestTimeout,
		}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Pool returns the server pool owned by the session.
func (s *Session) Pool() *serverpool.Pool {
	return s.pool
}

// Licenses returns the package ids the account owns, in ascending order.
// It is empty until the network has sent a license list.
func (s *Session) Licenses() []uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	ids := make([]uint32, 0, len(s.licenses))
	for id := range s.licenses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Connect blocks until the session is logged on.
func (s *Session) Connect(ctx context.Context) error {
	return s.ensureLoggedOn(ctx)
}

// setStateLocked must be called with the lock held. It wakes every waiter.
func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("session state changed", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

// ensureLoggedOn drives the state machine until LoggedOn. Waiters block on
// the state change gate while one of them pumps the remote's callbacks.
func (s *Session) ensureLoggedOn(ctx context.Context) error {
	s.drainPending(ctx)

	started := false
	for {
		s.lock.Lock()
		switch s.state {
		case LoggedOn:
			if s.remote.IsConnected() {
				s.lock.Unlock()
				return nil
			}
			// the attempt that logged on has already been answered
			s.attempt = nil
			s.setStateLocked(Disconnected)
			s.lock.Unlock()
			s.logger.Warn("connection lost after login, reconnecting")
			continue

		case Disconnected:
			if started {
				s.lock.Unlock()
				return ErrDisconnected
			}
			started = true
			s.setStateLocked(Connecting)
			s.lock.Unlock()

			if err := s.remote.Connect(ctx); err != nil {
				s.lock.Lock()
				if s.state == Connecting {
					s.setStateLocked(Disconnected)
				}
				s.lock.Unlock()
				return fmt.Errorf(errCauseFmt, ErrConnect, err)
			}
			continue

		case Connected:
			if s.attempt == nil {
				s.attempt = s.startLogin(ctx)
			}
		}
		started = true

		var (
			changed     = s.changed
			attempt     = s.attempt
			attemptDone <-chan struct{}
		)
		if attempt != nil {
			attemptDone = attempt.done
		}
		s.lock.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-attemptDone:
		case s.pump <- struct{}{}:
			err := s.pumpUntil(ctx, changed, attemptDone)
			<-s.pump
			if err != nil {
				return err
			}
		}

		if attempt != nil && attempt.finished() {
			if err := attempt.result(ctx); err != nil {
				return err
			}
		}
	}
}

// drainPending dispatches the callbacks already queued by the remote without
// waiting for new ones. It does nothing while another caller is pumping.
func (s *Session) drainPending(ctx context.Context) {
	select {
	case s.pump <- struct{}{}:
	default:
		return
	}
	defer func() { <-s.pump }()

	done, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cancel()
	for {
		if err := s.remote.RunPendingCallback(done); err != nil {
			return
		}
	}
}

// pumpUntil runs pending callbacks until the state changes, the login
// attempt finishes or ctx is done.
func (s *Session) pumpUntil(ctx context.Context, changed <-chan struct{}, attemptDone <-chan struct{}) error {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-changed:
		case <-attemptDone:
		case <-pctx.Done():
		}
		cancel()
	}()

	for pctx.Err() == nil {
		err := s.remote.RunPendingCallback(pctx)
		if err != nil && pctx.Err() == nil {
			return fmt.Errorf(errCauseFmt, ErrCallbackPump, err)
		}
	}
	return nil
}

func (s *Session) handleEvent(e Event) {
	switch e := e.(type) {
	case EventConnected:
		s.lock.Lock()
		if s.state == Connecting || s.state == Disconnected {
			s.setStateLocked(Connected)
		}
		s.lock.Unlock()
		s.logger.Info("connected to the network")

	case EventDisconnected:
		s.lock.Lock()
		a := s.attempt
		s.attempt = nil
		s.setStateLocked(Disconnected)
		s.lock.Unlock()
		if a != nil {
			a.cancel(ErrDisconnected)
		}
		s.logger.Warn("disconnected from the network", zap.Bool("userInitiated", e.UserInitiated))

	case EventLoggedOn:
		s.lock.Lock()
		if e.Result == model.ResultOK && s.state == Connected {
			s.setStateLocked(LoggedOn)
		}
		a := s.attempt
		s.lock.Unlock()
		if a != nil {
			a.deliver(e.Result)
		}
		s.logger.Info("login result received", zap.Stringer("result", e.Result))

	case EventLicenseList:
		licenses := make(map[uint32]struct{}, len(e.PackageIDs))
		for _, id := range e.PackageIDs {
			licenses[id] = struct{}{}
		}
		s.lock.Lock()
		s.licenses = licenses
		s.lock.Unlock()
		s.logger.Debug("license list received", zap.Int("packages", len(licenses)))
	}
}
