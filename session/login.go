// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
)

// loginAttempt is one run of the credential bootstrap. It runs under the
// context of the caller that started it.
type loginAttempt struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	loggedOn chan model.Result
	done     chan struct{}

	// set before done is closed
	err       error
	abandoned bool
}

func (a *loginAttempt) deliver(r model.Result) {
	select {
	case a.loggedOn <- r:
	default:
	}
}

func (a *loginAttempt) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// result interprets a finished attempt for a waiter. An attempt abandoned by
// the caller that started it is not an error for anyone else.
func (a *loginAttempt) result(ctx context.Context) error {
	if a.abandoned {
		return ctx.Err()
	}
	return a.err
}

// startLogin must be called with the lock held and the state Connected.
func (s *Session) startLogin(ctx context.Context) *loginAttempt {
	actx, cancel := context.WithCancelCause(ctx)
	a := &loginAttempt{
		ctx:      actx,
		cancel:   cancel,
		loggedOn: make(chan model.Result, 1),
		done:     make(chan struct{}),
	}

	go func() {
		err := s.login(actx, a)

		s.lock.Lock()
		if actx.Err() != nil && !errors.Is(context.Cause(actx), ErrDisconnected) {
			a.abandoned = true
		}
		if err != nil && errors.Is(context.Cause(actx), ErrDisconnected) {
			err = fmt.Errorf(errCauseFmt, ErrDisconnected, err)
		}
		a.err = err
		if s.attempt == a {
			s.attempt = nil
		}
		s.lock.Unlock()

		cancel(nil)
		close(a.done)

		if err != nil {
			s.logger.Warn("login attempt failed", zap.Bool("abandoned", a.abandoned), zap.Error(err))
		}
	}()
	return a
}

// login tries stored credentials first and falls back to a fresh
// authentication. Fresh credentials are saved before they are used.
func (s *Session) login(ctx context.Context, a *loginAttempt) error {
	if auth, ok := s.loadStoredAuth(ctx); ok {
		err := s.logOn(ctx, a, auth)
		if err == nil {
			s.measures.login(StoredMethod, SuccessOutcome)
			return nil
		}
		if ctx.Err() != nil || !errors.Is(err, ErrLogOnRejected) {
			s.measures.login(StoredMethod, FailureOutcome)
			return err
		}
		s.measures.login(StoredMethod, RejectedOutcome)
		s.logger.Info("stored credentials rejected, starting a new login", zap.String("username", auth.Username))
	}

	method := ChallengeMethod
	if s.config.Username != "" {
		method = CredentialsMethod
	}

	auth, err := s.authenticate(ctx, method)
	if err != nil {
		s.measures.login(method, FailureOutcome)
		return err
	}

	s.saveAuth(ctx, auth)

	if err := s.logOn(ctx, a, auth); err != nil {
		s.measures.login(method, FailureOutcome)
		return err
	}
	s.measures.login(method, SuccessOutcome)
	return nil
}

func (s *Session) loadStoredAuth(ctx context.Context) (model.AuthData, bool) {
	found, data, err := s.storage.TryLoad(ctx)
	if err != nil {
		s.logger.Warn("failed loading stored credentials", zap.Error(err))
		return model.AuthData{}, false
	}
	if !found {
		return model.AuthData{}, false
	}

	auth, err := model.UnmarshalAuthData(data)
	if err != nil {
		s.logger.Warn("ignoring unreadable stored credentials", zap.Error(err))
		return model.AuthData{}, false
	}
	if auth.Expired(s.now()) {
		s.logger.Info("stored refresh token has expired", zap.String("username", auth.Username))
		return model.AuthData{}, false
	}
	return auth, true
}

// saveAuth persists auth. A failed save only costs a new login next time.
func (s *Session) saveAuth(ctx context.Context, auth model.AuthData) {
	data, err := auth.Marshal()
	if err == nil {
		err = s.storage.Save(ctx, data)
	}
	if err != nil {
		s.logger.Error("failed saving credentials", zap.String("username", auth.Username), zap.Error(err))
	}
}

func (s *Session) authenticate(ctx context.Context, method string) (model.AuthData, error) {
	var (
		challenge LoginChallenge
		err       error
	)
	if method == CredentialsMethod {
		challenge, err = s.remote.BeginCredentialsAuth(ctx, s.config.Username, s.config.Password)
	} else {
		challenge, err = s.remote.BeginChallengeAuth(ctx, func(u string) {
			if err := s.showChallenge(ctx, u); err != nil {
				s.logger.Warn("ignoring login challenge update", zap.Error(err))
			}
		})
	}
	if err != nil {
		return model.AuthData{}, fmt.Errorf(errCauseFmt, ErrChallenge, err)
	}

	if u := challenge.URL(); u != "" {
		if err := s.showChallenge(ctx, u); err != nil {
			return model.AuthData{}, err
		}
	}

	auth, err := challenge.Poll(ctx)
	if err != nil {
		return model.AuthData{}, fmt.Errorf(errCauseFmt, ErrChallenge, err)
	}
	return auth, nil
}

func (s *Session) showChallenge(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf(errWrappedFmt, ErrChallengeURL, err.Error())
	}
	s.intervention.ShowLoginChallenge(ctx, u)
	return nil
}

// logOn submits auth and waits for the matching EventLoggedOn.
func (s *Session) logOn(ctx context.Context, a *loginAttempt, auth model.AuthData) error {
	if err := s.remote.LogOn(ctx, auth); err != nil {
		return fmt.Errorf(errCauseFmt, ErrLogOn, err)
	}

	select {
	case r := <-a.loggedOn:
		if r != model.ResultOK {
			return fmt.Errorf("%w: result %s", ErrLogOnRejected, r)
		}
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
