// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/go-kit/kit/endpoint"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/model"
)

// Service is the content lookup the API serves. *session.Session satisfies it.
type Service interface {
	GetProductInfo(ctx context.Context, app model.AppID) (model.ProductInfo, error)
	GetManifestContents(ctx context.Context, app model.AppID, depot model.DepotID, m model.ManifestID, branch string) (model.Manifest, error)
	OpenFile(ctx context.Context, app model.AppID, m model.Manifest, path string) (*chunk.Reader, error)
	Licenses() []uint32
}

func newGetAppEndpoint(s Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		appRequest := request.(*getAppRequest)
		info, err := s.GetProductInfo(ctx, appRequest.app)
		if err != nil {
			return nil, err
		}
		return &info, nil
	}
}

func newGetManifestEndpoint(ms *manifests) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*getManifestRequest)
		m, err := ms.get(ctx, *r)
		if err != nil {
			return nil, err
		}
		return &m, nil
	}
}

func newGetFileEndpoint(s Service, ms *manifests) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*getFileRequest)
		m, err := ms.get(ctx, r.getManifestRequest)
		if err != nil {
			return nil, err
		}
		reader, err := s.OpenFile(ctx, r.app, m, r.path)
		if err != nil {
			return nil, err
		}
		return &fileResponse{name: r.path, reader: reader}, nil
	}
}

func newGetLicensesEndpoint(s Service) endpoint.Endpoint {
	return func(context.Context, interface{}) (interface{}, error) {
		return &licensesResponse{Packages: s.Licenses()}, nil
	}
}
