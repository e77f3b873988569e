// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/xmidt-org/cargo/indexer"
	"go.uber.org/zap"
)

// login connects and logs on, which persists fresh credentials when the
// stored ones are missing or rejected.
func login(ctx context.Context, s sessionConnector, logger *zap.Logger) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	logger.Info("logged on")
	return nil
}

func index(ctx context.Context, s indexService, cmd command, logger *zap.Logger) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	ix, err := indexer.New(indexer.Config{
		Output: cmd.Output,
		Logger: logger,
	}, s)
	if err != nil {
		return err
	}
	_, err = ix.Index(ctx, cmd.Index)
	return err
}

type sessionConnector interface {
	Connect(ctx context.Context) error
}

type indexService interface {
	sessionConnector
	indexer.Service
}
