// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/model"
	"github.com/xmidt-org/cargo/session"
	"github.com/xmidt-org/httpaux/erraux"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// XmidtErrorHeaderKey carries the error message of failed requests.
const XmidtErrorHeaderKey = "X-Midt-Error"

type BadRequestErr struct {
	Message string
}

func (bre BadRequestErr) Error() string {
	return bre.Message
}

func (bre BadRequestErr) StatusCode() int {
	return http.StatusBadRequest
}

// statusCodes is checked in order; the first match wins.
var statusCodes = []struct {
	err  error
	code int
}{
	{err: model.ErrProductInfoUnavailable, code: http.StatusNotFound},
	{err: chunk.ErrFileNotFound, code: http.StatusNotFound},
	{err: chunk.ErrIsDirectory, code: http.StatusBadRequest},
	{err: chunk.ErrCorruptChunk, code: http.StatusInternalServerError},
	{err: chunk.ErrInvalidGeometry, code: http.StatusInternalServerError},
	{err: model.ErrResourceUnavailable, code: http.StatusBadGateway},
	{err: session.ErrManifestFetch, code: http.StatusBadGateway},
	{err: session.ErrConnect, code: http.StatusServiceUnavailable},
	{err: session.ErrDisconnected, code: http.StatusServiceUnavailable},
	{err: session.ErrLogOnRejected, code: http.StatusServiceUnavailable},
	{err: session.ErrChallenge, code: http.StatusServiceUnavailable},
	{err: context.DeadlineExceeded, code: http.StatusGatewayTimeout},
}

// sanitizeError attaches an HTTP status code to err.
func sanitizeError(err error) error {
	var coder kithttp.StatusCoder
	if errors.As(err, &coder) {
		return err
	}
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return &erraux.Error{Err: err, Code: sc.code}
		}
	}
	return &erraux.Error{Err: err, Code: http.StatusInternalServerError}
}

func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	err = sanitizeError(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(XmidtErrorHeaderKey, err.Error())
	if headerer, ok := err.(kithttp.Headerer); ok {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}
	code := http.StatusInternalServerError
	if sc, ok := err.(kithttp.StatusCoder); ok {
		code = sc.StatusCode()
	}
	if code >= http.StatusInternalServerError {
		sallust.Get(ctx).Error("request failed", zap.Int("code", code), zap.Error(err))
	}
	w.WriteHeader(code)
}
