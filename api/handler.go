// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package api serves product info, manifests and file contents over HTTP.
package api

import (
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/cargo/session"
	"go.uber.org/fx"
)

// ConfigKey is the configuration key of the API handlers.
const ConfigKey = "api"

type Handler http.Handler

// Handlers are the HTTP handlers of the API.
type Handlers struct {
	fx.Out
	GetApp      Handler `name:"get_app_handler"`
	GetManifest Handler `name:"get_manifest_handler"`
	GetFile     Handler `name:"get_file_handler"`
	GetLicenses Handler `name:"get_licenses_handler"`
}

// HandlersIn is the consuming side of Handlers.
type HandlersIn struct {
	fx.In
	GetApp      Handler `name:"get_app_handler"`
	GetManifest Handler `name:"get_manifest_handler"`
	GetFile     Handler `name:"get_file_handler"`
	GetLicenses Handler `name:"get_licenses_handler"`
}

// Config configures the API handlers.
type Config struct {
	// ManifestCacheSize is the number of parsed manifests kept for file
	// requests.
	// (Optional) Defaults to 64.
	ManifestCacheSize int
}

func newGetAppHandler(s Service) Handler {
	return kithttp.NewServer(
		newGetAppEndpoint(s),
		decodeGetAppRequest,
		encodeJSONResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newGetManifestHandler(ms *manifests) Handler {
	return kithttp.NewServer(
		newGetManifestEndpoint(ms),
		decodeGetManifestRequest,
		encodeJSONResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newGetFileHandler(s Service, ms *manifests) Handler {
	return kithttp.NewServer(
		newGetFileEndpoint(s, ms),
		decodeGetFileRequest,
		encodeFileResponse,
		kithttp.ServerBefore(withRequest),
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newGetLicensesHandler(s Service) Handler {
	return kithttp.NewServer(
		newGetLicensesEndpoint(s),
		decodeGetLicensesRequest,
		encodeJSONResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

// NewHandlers builds every handler of the API around s.
func NewHandlers(config Config, s Service) (Handlers, error) {
	ms, err := newManifests(s, config.ManifestCacheSize)
	if err != nil {
		return Handlers{}, err
	}
	return Handlers{
		GetApp:      newGetAppHandler(s),
		GetManifest: newGetManifestHandler(ms),
		GetFile:     newGetFileHandler(s, ms),
		GetLicenses: newGetLicensesHandler(s),
	}, nil
}

// ProvideHandlers builds the API handlers around the application's session.
func ProvideHandlers() fx.Option {
	return fx.Provide(
		arrange.UnmarshalKey(ConfigKey, Config{}),
		func(config Config, s *session.Session) (Handlers, error) {
			return NewHandlers(config, s)
		},
	)
}

// Routes registers the handlers on r, which is expected to be rooted at the
// API base path.
func Routes(r *mux.Router, h HandlersIn) {
	appPath := "/apps/{app}"
	manifestPath := appPath + "/depots/{depot}/manifests/{manifest}"
	r.Handle("/licenses", h.GetLicenses).Methods(http.MethodGet)
	r.Handle(appPath, h.GetApp).Methods(http.MethodGet)
	r.Handle(manifestPath, h.GetManifest).Methods(http.MethodGet)
	r.Handle(manifestPath+"/files/{path:.+}", h.GetFile).Methods(http.MethodGet, http.MethodHead)
}
