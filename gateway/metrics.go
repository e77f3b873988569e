// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	RequestCounter = "cargo_gateway_requests_total"
	PollCounter    = "cargo_gateway_event_polls_total"
)

// Labels
const (
	OperationLabel = "operation"
	CodeLabel      = "code"
	OutcomeLabel   = "outcome"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
	ErrorCode      = "error"
)

// ProvideMetrics provides the metrics relevant to this package as uber/fx
// options.
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: RequestCounter,
				Help: "Counter for requests sent to the content gateway.",
			},
			OperationLabel, CodeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: PollCounter,
				Help: "Counter for event polls against the content gateway.",
			},
			OutcomeLabel,
		),
	)
}

// Measures may be left zero, in which case nothing is recorded.
type Measures struct {
	fx.In
	Requests *prometheus.CounterVec `name:"cargo_gateway_requests_total" optional:"true"`
	Polls    *prometheus.CounterVec `name:"cargo_gateway_event_polls_total" optional:"true"`
}

func (m Measures) request(op string, code int, err error) {
	if m.Requests == nil {
		return
	}
	label := ErrorCode
	if err == nil || code != 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.With(prometheus.Labels{OperationLabel: op, CodeLabel: label}).Inc()
}

func (m Measures) polled(err error) {
	if m.Polls == nil {
		return
	}
	outcome := SuccessOutcome
	if err != nil {
		outcome = FailureOutcome
	}
	m.Polls.With(prometheus.Labels{OutcomeLabel: outcome}).Inc()
}
