// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/model"
)

// request URL path keys
const (
	appVarKey      = "app"
	depotVarKey    = "depot"
	manifestVarKey = "manifest"
	pathVarKey     = "path"
	branchQueryKey = "branch"
)

// ErrCasting indicates there was a middleware wiring mistake with the go-kit style
// encoders.
var ErrCasting = errors.New("casting error due to middleware wiring mistake")

type contextKey struct{}

type getAppRequest struct {
	app model.AppID
}

type getManifestRequest struct {
	app      model.AppID
	depot    model.DepotID
	manifest model.ManifestID
	branch   string
}

type getFileRequest struct {
	getManifestRequest
	path string
}

type licensesResponse struct {
	Packages []uint32 `json:"packages"`
}

type fileResponse struct {
	name   string
	reader *chunk.Reader
}

func parseUint(vars map[string]string, key string, bits int) (uint64, error) {
	raw, ok := vars[key]
	if !ok {
		return 0, &BadRequestErr{Message: "{" + key + "} URL path parameter missing"}
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, &BadRequestErr{Message: "{" + key + "} must be an unsigned integer"}
	}
	return v, nil
}

func decodeGetAppRequest(_ context.Context, r *http.Request) (interface{}, error) {
	app, err := parseUint(mux.Vars(r), appVarKey, 32)
	if err != nil {
		return nil, err
	}
	return &getAppRequest{app: model.AppID(app)}, nil
}

func parseManifestRequest(r *http.Request) (getManifestRequest, error) {
	vars := mux.Vars(r)
	app, err := parseUint(vars, appVarKey, 32)
	if err != nil {
		return getManifestRequest{}, err
	}
	depot, err := parseUint(vars, depotVarKey, 32)
	if err != nil {
		return getManifestRequest{}, err
	}
	manifest, err := parseUint(vars, manifestVarKey, 64)
	if err != nil {
		return getManifestRequest{}, err
	}
	return getManifestRequest{
		app:      model.AppID(app),
		depot:    model.DepotID(depot),
		manifest: model.ManifestID(manifest),
		branch:   r.URL.Query().Get(branchQueryKey),
	}, nil
}

func decodeGetManifestRequest(_ context.Context, r *http.Request) (interface{}, error) {
	req, err := parseManifestRequest(r)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeGetLicensesRequest(context.Context, *http.Request) (interface{}, error) {
	return nil, nil
}

func decodeGetFileRequest(_ context.Context, r *http.Request) (interface{}, error) {
	req, err := parseManifestRequest(r)
	if err != nil {
		return nil, err
	}
	p, ok := mux.Vars(r)[pathVarKey]
	if !ok || p == "" {
		return nil, &BadRequestErr{Message: "{path} URL path parameter missing"}
	}
	return &getFileRequest{getManifestRequest: req, path: p}, nil
}

func encodeJSONResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	rw.Header().Add("Content-Type", "application/json")
	_, err = rw.Write(data)
	return err
}

// withRequest keeps the inbound request around for encoders that need it.
func withRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

func encodeFileResponse(ctx context.Context, rw http.ResponseWriter, response interface{}) error {
	f, ok := response.(*fileResponse)
	if !ok {
		return ErrCasting
	}
	r, ok := ctx.Value(contextKey{}).(*http.Request)
	if !ok {
		return ErrCasting
	}
	rw.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(rw, r, path.Base(f.name), time.Time{}, f.reader)
	return nil
}
