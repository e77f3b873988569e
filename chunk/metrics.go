// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	ReadCounter = "cargo_chunk_reads_total"
)

// Labels
const (
	OutcomeLabel = "outcome"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
	CorruptOutcome = "corrupt"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ReadCounter,
				Help: "Counter for the number of chunk downloads and their outcomes.",
			},
			OutcomeLabel,
		),
	)
}

type Measures struct {
	fx.In
	Reads *prometheus.CounterVec `name:"cargo_chunk_reads_total" optional:"true"`
}

func (m Measures) read(outcome string) {
	if m.Reads != nil {
		m.Reads.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
	}
}
