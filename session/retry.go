// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xmidt-org/cargo/model"
)

const (
	defaultManifestAttempts = 3
	defaultManifestTimeout  = 10 * time.Second
)

// RetryPolicy runs op until it succeeds or the policy gives up.
type RetryPolicy interface {
	Do(ctx context.Context, op func(context.Context) error) error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// AttemptsPolicy retries up to Attempts times, bounding each attempt with
// Timeout. Resource errors and errors marked Permanent stop it early.
type AttemptsPolicy struct {
	Attempts int
	Timeout  time.Duration
}

func (p AttemptsPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := max(p.Attempts, 1)
	b := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(attempts-1)),
		ctx,
	)

	return backoff.Retry(func() error {
		err := p.once(ctx, op)
		if err == nil || retryable(ctx, err) {
			return err
		}
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			return pe
		}
		return backoff.Permanent(err)
	}, b)
}

func (p AttemptsPolicy) once(ctx context.Context, op func(context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(ctx)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *backoff.PermanentError
	return !errors.As(err, &pe) && !errors.Is(err, model.ErrResourceUnavailable)
}
