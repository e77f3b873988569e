// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/serverpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConfigKey is the configuration key for the session.
const ConfigKey = "session"

// SessionIn is the set of dependencies for a Session.
type SessionIn struct {
	fx.In
	Config       Config
	Remote       RemoteService
	Storage      AuthStorage
	Intervention AuthInterventionHandler `optional:"true"`
	Measures     Measures
	Logger       *zap.Logger
}

// Provide wires a Session, along with the metrics of the packages it
// drives. Without an AuthInterventionHandler, challenges are logged.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		serverpool.ProvideMetrics(),
		chunk.ProvideMetrics(),
		fx.Provide(
			arrange.UnmarshalKey(ConfigKey, Config{}),
			func(in SessionIn) (*Session, error) {
				config := in.Config
				if config.Logger == nil {
					config.Logger = in.Logger
				}
				intervention := in.Intervention
				if intervention == nil {
					intervention = LoggingInterventionHandler{Logger: in.Logger}
				}
				return New(config, in.Remote, in.Storage, intervention, in.Measures)
			},
		),
	)
}
