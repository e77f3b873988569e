// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/touchstone"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/fx"
)

// provideMetrics builds the metrics registry and the inbound HTTP
// instrumenters, and makes them available to the container.
func provideMetrics() fx.Option {
	return fx.Options(
		touchstone.Provide(),
		fx.Provide(
			arrange.UnmarshalKey("prometheus", touchstone.Config{}),
			fx.Annotated{
				Name: "servers.primary.metrics",
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "primary",
				),
			},
			fx.Annotated{
				Name: "servers.health.metrics",
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "health",
				),
			},
		),
	)
}
