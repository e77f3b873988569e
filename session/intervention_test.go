// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingInterventionHandler(t *testing.T) {
	assert := assert.New(t)
	core, logs := observer.New(zap.InfoLevel)
	u, _ := url.Parse("https://login.example.net/q/1")

	LoggingInterventionHandler{Logger: zap.New(core)}.ShowLoginChallenge(context.Background(), u)

	entries := logs.FilterField(zap.Stringer("url", u)).All()
	if assert.Len(entries, 1) {
		assert.Equal(zap.InfoLevel, entries[0].Level)
	}
}
