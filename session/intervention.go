// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/url"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// LoggingInterventionHandler presents login challenges by logging them.
// It suits headless deployments where an operator watches the logs.
type LoggingInterventionHandler struct {
	Logger *zap.Logger
}

func (h LoggingInterventionHandler) ShowLoginChallenge(ctx context.Context, uri *url.URL) {
	logger := h.Logger
	if logger == nil {
		logger = sallust.Get(ctx)
	}
	logger.Info("login required, open the challenge url to continue", zap.Stringer("url", uri))
}
