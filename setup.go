// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/model"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

var errOutputRequired = errors.New("--output is required with --index")

// command is the one-shot work requested on the command line. The zero
// value runs the servers.
type command struct {
	Login  bool
	Index  model.AppID
	Output string
}

func (c command) serve() bool {
	return !c.Login && c.Index == 0
}

func setupFlagSet(fs *pflag.FlagSet) {
	fs.StringP("file", "f", "", "the configuration file to use.  Overrides the search path.")
	fs.BoolP("debug", "d", false, "enables debug logging.  Overrides configuration.")
	fs.BoolP("version", "v", false, "print version and exit")
	fs.Bool("login", false, "log in to the network, store the credentials and exit")
	fs.Uint32("index", 0, "index every manifest of the given app id and exit")
	fs.StringP("output", "o", "", "the directory the index is written to")
}

func parseCommand(fs *pflag.FlagSet) (command, error) {
	var c command
	c.Login, _ = fs.GetBool("login")
	app, _ := fs.GetUint32("index")
	c.Index = model.AppID(app)
	c.Output, _ = fs.GetString("output")
	if c.Index != 0 && c.Output == "" {
		return c, errOutputRequired
	}
	return c, nil
}

func setup(args []string) (*viper.Viper, *zap.Logger, command, error) {
	l, err := zap.NewDevelopment() // initial value
	if err != nil {
		return nil, l, command{}, fmt.Errorf("failed to create zap logger: %w", err)
	}

	fs := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	setupFlagSet(fs)
	err = fs.Parse(args)
	if err != nil {
		return nil, l, command{}, fmt.Errorf("failed to create parse args: %w", err)
	}
	if printVersion, _ := fs.GetBool("version"); printVersion {
		printVersionInfo()
	}
	cmd, err := parseCommand(fs)
	if err != nil {
		return nil, l, cmd, err
	}

	v := viper.New()

	if file, _ := fs.GetString("file"); len(file) > 0 {
		v.SetConfigFile(file)
		err = v.ReadInConfig()
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
		v.AddConfigPath(".")
		err = v.ReadInConfig()
	}
	if err != nil {
		return v, l, cmd, fmt.Errorf("failed to read config file: %w", err)
	}

	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("logging.level", "DEBUG")
	}

	var c sallust.Config
	err = v.UnmarshalKey("logging", &c, arrange.ComposeDecodeHooks(sallust.DecodeHook))
	if err != nil {
		return v, l, cmd, err
	}

	l, err = c.Build()
	return v, l, cmd, err
}

func printVersionInfo() {
	fmt.Fprintf(os.Stdout, "%s:\n", applicationName)
	fmt.Fprintf(os.Stdout, "  version: \t%s\n", Version)
	fmt.Fprintf(os.Stdout, "  go version: \t%s\n", runtime.Version())
	fmt.Fprintf(os.Stdout, "  built time: \t%s\n", BuildTime)
	fmt.Fprintf(os.Stdout, "  git commit: \t%s\n", GitCommit)
	fmt.Fprintf(os.Stdout, "  os/arch: \t%s/%s\n", runtime.GOOS, runtime.GOARCH)
	os.Exit(0)
}
