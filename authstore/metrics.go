// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package authstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	QueryCounter            = "cargo_auth_store_queries_total"
	ConsumedCapacityCounter = "cargo_auth_store_capacity_units_consumed"
)

// Labels
const (
	TypeLabel     = "type"
	OutcomeLabel  = "outcome"
	CapacityLabel = "capacity"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"

	ReadCapacity  = "read"
	WriteCapacity = "write"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: QueryCounter,
				Help: "The total number of auth store queries by type and outcome.",
			},
			TypeLabel, OutcomeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ConsumedCapacityCounter,
				Help: "The number of capacity units consumed by auth store operations.",
			},
			TypeLabel, CapacityLabel,
		),
	)
}

type Measures struct {
	fx.In
	Queries          *prometheus.CounterVec `name:"cargo_auth_store_queries_total" optional:"true"`
	ConsumedCapacity *prometheus.CounterVec `name:"cargo_auth_store_capacity_units_consumed" optional:"true"`
}

// Query records the outcome of one backend operation.
func (m Measures) Query(opType string, err error) {
	if m.Queries == nil {
		return
	}
	outcome := SuccessOutcome
	if err != nil {
		outcome = FailureOutcome
	}
	m.Queries.With(prometheus.Labels{TypeLabel: opType, OutcomeLabel: outcome}).Inc()
}

// Consumed records capacity units reported by the backend.
func (m Measures) Consumed(opType, capacity string, units float64) {
	if m.ConsumedCapacity == nil || units == 0 {
		return
	}
	m.ConsumedCapacity.With(prometheus.Labels{TypeLabel: opType, CapacityLabel: capacity}).Add(units)
}
