// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/serverpool"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	LoginCounter       = "cargo_login_attempts_total"
	CacheLookupCounter = "cargo_cache_lookups_total"
)

// Labels
const (
	OutcomeLabel = "outcome"
	MethodLabel  = "method"
	CacheLabel   = "cache"
)

// Label Values
const (
	SuccessOutcome  = "success"
	FailureOutcome  = "failure"
	RejectedOutcome = "rejected"
	HitOutcome      = "hit"
	MissOutcome     = "miss"

	StoredMethod      = "stored"
	CredentialsMethod = "credentials"
	ChallengeMethod   = "challenge"

	DepotKeyCache    = "depot_key"
	RequestCodeCache = "request_code"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: LoginCounter,
				Help: "Counter for the number of login attempts by method and outcome.",
			},
			MethodLabel, OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: CacheLookupCounter,
				Help: "Counter for depot key and request code cache lookups.",
			},
			CacheLabel, OutcomeLabel,
		),
	)
}

// Measures may be left zero, in which case nothing is recorded.
type Measures struct {
	fx.In
	Logins       *prometheus.CounterVec `name:"cargo_login_attempts_total" optional:"true"`
	CacheLookups *prometheus.CounterVec `name:"cargo_cache_lookups_total" optional:"true"`

	Pool   serverpool.Measures
	Chunks chunk.Measures
}

func (m Measures) login(method, outcome string) {
	if m.Logins != nil {
		m.Logins.With(prometheus.Labels{MethodLabel: method, OutcomeLabel: outcome}).Inc()
	}
}

func (m Measures) lookup(cache string, hit bool) {
	if m.CacheLookups == nil {
		return
	}
	outcome := MissOutcome
	if hit {
		outcome = HitOutcome
	}
	m.CacheLookups.With(prometheus.Labels{CacheLabel: cache, OutcomeLabel: outcome}).Inc()
}
