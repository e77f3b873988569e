// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/arrange/arrangehttp"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/cargo/api"
	"github.com/xmidt-org/httpaux"
	"github.com/xmidt-org/sallust"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

type RoutesIn struct {
	fx.In
	PrimaryMetrics touchhttp.ServerInstrumenter `name:"servers.primary.metrics"`
	HealthMetrics  touchhttp.ServerInstrumenter `name:"servers.health.metrics"`
	MetricsHandler touchhttp.Handler
	Tracing        candlelight.Tracing
	Handlers       api.HandlersIn
	Logger         *zap.Logger

	Primary *mux.Router `name:"servers.primary"`
	Metrics *mux.Router `name:"servers.metrics"`
	Health  *mux.Router `name:"servers.health"`
}

func provideServers() fx.Option {
	return fx.Options(
		api.ProvideHandlers(),
		provideRouters(),
	)
}

// provideRouters binds the primary, metrics and health servers to the
// application lifecycle and routes them.
func provideRouters() fx.Option {
	return fx.Options(
		arrangehttp.Server{Name: "servers.primary", Key: "servers.primary"}.Provide(),
		arrangehttp.Server{Name: "servers.metrics", Key: "servers.metrics"}.Provide(),
		arrangehttp.Server{Name: "servers.health", Key: "servers.health"}.Provide(),
		touchhttp.Provide(),
		fx.Provide(
			arrange.UnmarshalKey("prometheusHandler", touchhttp.Config{}),
			candlelight.New,
			arrange.UnmarshalKey("tracing", candlelight.Config{ApplicationName: applicationName}),
		),
		fx.Invoke(buildRoutes),
	)
}

func buildRoutes(in RoutesIn) {
	primaryRoutes(in.Primary, in)
	healthRoutes(in.Health, in.HealthMetrics)
	metricsRoutes(in.Metrics, in.MetricsHandler)
}

// loggerMiddleware makes the application logger available to request
// handlers through sallust.Get.
func loggerMiddleware(logger *zap.Logger) alice.Constructor {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(sallust.With(r.Context(), logger)))
		})
	}
}

func primaryRoutes(router *mux.Router, in RoutesIn) {
	options := []otelmux.Option{
		otelmux.WithTracerProvider(in.Tracing.TracerProvider()),
		otelmux.WithPropagators(in.Tracing.Propagator()),
	}
	router.Use(
		alice.New(in.PrimaryMetrics.Then, loggerMiddleware(in.Logger)).Then,
		otelmux.Middleware("server_primary", options...),
		candlelight.EchoFirstTraceNodeInfo(in.Tracing, false),
	)

	api.Routes(router.PathPrefix("/"+apiBase).Subrouter(), in.Handlers)
}

func healthRoutes(router *mux.Router, metrics touchhttp.ServerInstrumenter) {
	router.Handle(healthPath, metrics.Then(httpaux.ConstantHandler{
		StatusCode: http.StatusOK,
	})).Methods(http.MethodGet)
}

func metricsRoutes(router *mux.Router, h touchhttp.Handler) {
	router.Handle(metricsPath, h).Methods(http.MethodGet)
}
