// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package serverpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	RefreshCounter  = "cargo_server_list_refreshes_total"
	FailoverCounter = "cargo_server_failovers_total"
)

// Labels
const (
	OutcomeLabel = "outcome"
	HostLabel    = "host"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
	EmptyOutcome   = "empty"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: RefreshCounter,
				Help: "Counter for the number of server list queries and their outcomes.",
			},
			OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: FailoverCounter,
				Help: "Counter for the number of times a pinned server was failed.",
			},
			HostLabel,
		),
	)
}

// Measures may be left zero, in which case nothing is recorded.
type Measures struct {
	fx.In
	Refreshes *prometheus.CounterVec `name:"cargo_server_list_refreshes_total" optional:"true"`
	Failovers *prometheus.CounterVec `name:"cargo_server_failovers_total" optional:"true"`
}

func (m Measures) refreshed(outcome string) {
	if m.Refreshes != nil {
		m.Refreshes.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
	}
}

func (m Measures) failed(host string) {
	if m.Failovers != nil {
		m.Failovers.With(prometheus.Labels{HostLabel: host}).Inc()
	}
}
