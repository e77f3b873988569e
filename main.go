// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/authstore"
	"github.com/xmidt-org/cargo/authstore/db"
	"github.com/xmidt-org/cargo/gateway"
	"github.com/xmidt-org/cargo/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	applicationName = "cargo"
	apiBase         = "api/v1"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

// coreOptions wires everything needed to talk to the network.
func coreOptions() fx.Option {
	return fx.Options(
		provideMetrics(),
		db.Provide(),
		gateway.Provide(),
		session.Provide(),
		fx.Provide(
			func(s authstore.Store) session.AuthStorage {
				return s
			},
		),
	)
}

func main() {
	v, logger, cmd, err := setup(os.Args[1:])
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var s *session.Session
	options := []fx.Option{
		arrange.LoggerFunc(logger.Sugar().Infof),
		arrange.ForViper(v),
		fx.Supply(logger, v),
		coreOptions(),
	}
	if cmd.serve() {
		options = append(options, provideServers())
	} else {
		options = append(options, fx.Populate(&s))
	}
	app := fx.New(options...)

	switch err := app.Err(); {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err == nil && cmd.serve():
		app.Run()
	case err == nil:
		os.Exit(runCommand(app, s, cmd, logger))
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// runCommand starts app, runs cmd against s and stops app again. The
// returned value is the process exit code.
func runCommand(app *fx.App, s *session.Session, cmd command, logger *zap.Logger) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, app.StartTimeout())
	defer startCancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error("failed to start", zap.Error(err))
		return 2
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer stopCancel()
		if err := app.Stop(stopCtx); err != nil {
			logger.Error("failed to stop cleanly", zap.Error(err))
		}
	}()

	var err error
	switch {
	case cmd.Login:
		err = login(ctx, s, logger)
	default:
		err = index(ctx, s, cmd, logger)
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		return 1
	}
	return 0
}
