// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xmidt-org/cargo/model"
)

// DefaultManifestCacheSize is the number of parsed manifests kept by the
// handlers when no size is configured.
const DefaultManifestCacheSize = 64

// manifests keeps parsed manifests so that file requests do not download
// the manifest again. Manifest ids name immutable content, failures are not
// kept.
type manifests struct {
	s     Service
	cache *lru.Cache[getManifestRequest, model.Manifest]
}

func newManifests(s Service, size int) (*manifests, error) {
	if size <= 0 {
		size = DefaultManifestCacheSize
	}
	c, err := lru.New[getManifestRequest, model.Manifest](size)
	if err != nil {
		return nil, err
	}
	return &manifests{s: s, cache: c}, nil
}

func (ms *manifests) get(ctx context.Context, r getManifestRequest) (model.Manifest, error) {
	if m, ok := ms.cache.Get(r); ok {
		return m, nil
	}
	m, err := ms.s.GetManifestContents(ctx, r.app, r.depot, r.manifest, r.branch)
	if err != nil {
		return model.Manifest{}, err
	}
	ms.cache.Add(r, m)
	return m, nil
}
