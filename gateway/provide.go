// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConfigKey is the configuration key for the gateway client.
const ConfigKey = "gateway"

// ClientIn is the set of dependencies for the gateway client.
type ClientIn struct {
	fx.In
	Config   ClientConfig
	Measures Measures
	Logger   *zap.Logger
}

// Provide wires the gateway client in as the session's RemoteService.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			arrange.UnmarshalKey(ConfigKey, ClientConfig{}),
			func(in ClientIn) (*Client, error) {
				config := in.Config
				if config.Logger == nil {
					config.Logger = in.Logger
				}
				return NewClient(config, in.Measures, nil)
			},
			func(c *Client) session.RemoteService {
				return c
			},
		),
	)
}
