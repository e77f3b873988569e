// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmidt-org/cargo/manifest"
	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
)

// GetDepotKey returns the decryption key of depot, fetching it once per
// (app, depot).
func (s *Session) GetDepotKey(ctx context.Context, app model.AppID, depot model.DepotID) ([]byte, error) {
	key, hit, err := s.depotKeys.Fetch(ctx, depotKey{app: uint32(app), depot: uint32(depot)},
		func(ctx context.Context) ([]byte, error) {
			if err := s.ensureLoggedOn(ctx); err != nil {
				return nil, err
			}
			r, err := s.remote.GetDepotKey(ctx, app, depot)
			if err != nil {
				return nil, err
			}
			if r.Result != model.ResultOK {
				return nil, &model.ResourceError{
					Err:    model.ErrDepotKeyUnavailable,
					Result: r.Result,
					App:    app,
					Depot:  depot,
				}
			}
			return r.Key, nil
		})
	if err == nil {
		s.measures.lookup(DepotKeyCache, hit)
	}
	return key, err
}

// GetManifestRequestCode returns the code needed to download a manifest,
// fetching it once per (app, depot, manifest, branch).
func (s *Session) GetManifestRequestCode(ctx context.Context, app model.AppID, depot model.DepotID, m model.ManifestID, branch string) (uint64, error) {
	if branch == "" {
		branch = model.DefaultBranch
	}
	k := requestCodeKey{app: uint32(app), depot: uint32(depot), manifest: uint64(m), branch: branch}
	code, hit, err := s.requestCodes.Fetch(ctx, k, func(ctx context.Context) (uint64, error) {
		if err := s.ensureLoggedOn(ctx); err != nil {
			return 0, err
		}
		code, err := s.remote.GetManifestRequestCode(ctx, app, depot, m, branch)
		if err != nil {
			return 0, err
		}
		if code == 0 {
			return 0, &model.ResourceError{
				Err:      model.ErrRequestCodeUnavailable,
				App:      app,
				Depot:    depot,
				Manifest: m,
				Branch:   branch,
			}
		}
		return code, nil
	})
	if err == nil {
		s.measures.lookup(RequestCodeCache, hit)
	}
	return code, err
}

// GetManifestContents downloads and parses a manifest through the pinned
// content server. A failed download fails the server and is retried
// according to the session's RetryPolicy.
func (s *Session) GetManifestContents(ctx context.Context, app model.AppID, depot model.DepotID, m model.ManifestID, branch string) (model.Manifest, error) {
	if branch == "" {
		branch = model.DefaultBranch
	}
	if err := s.ensureLoggedOn(ctx); err != nil {
		return model.Manifest{}, err
	}

	code, err := s.GetManifestRequestCode(ctx, app, depot, m, branch)
	if err != nil {
		return model.Manifest{}, err
	}
	key, err := s.GetDepotKey(ctx, app, depot)
	if err != nil {
		return model.Manifest{}, err
	}

	var result model.Manifest
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		server, err := s.pool.GetServer(ctx)
		if err != nil {
			return err
		}
		token, err := s.pool.GetCDNAuthToken(ctx, app, depot, server)
		if err != nil {
			return err
		}

		wire, err := s.remote.DownloadManifest(ctx, model.ManifestRequest{
			App:         app,
			Depot:       depot,
			Manifest:    m,
			Branch:      branch,
			RequestCode: code,
			DepotKey:    key,
			Server:      server,
			CDNToken:    token,
		})
		if err != nil {
			if !errors.Is(ctx.Err(), context.Canceled) {
				s.pool.FailServerIf(server)
			}
			s.logger.Warn("manifest download failed",
				zap.Stringer("depot", depot), zap.Stringer("manifest", m),
				zap.String("host", server.Host), zap.Error(err))
			return fmt.Errorf(errCauseFmt, ErrManifestFetch, err)
		}

		parsed, err := manifest.ParseChecked(wire)
		if err != nil {
			return Permanent(err)
		}
		result = parsed
		return nil
	})
	if err != nil {
		return model.Manifest{}, err
	}
	return result, nil
}

// GetProductInfo returns the depots and manifests published for app.
func (s *Session) GetProductInfo(ctx context.Context, app model.AppID) (model.ProductInfo, error) {
	if err := s.ensureLoggedOn(ctx); err != nil {
		return model.ProductInfo{}, err
	}
	info, err := s.remote.GetProductInfo(ctx, app)
	if err != nil {
		return model.ProductInfo{}, err
	}
	if info == nil {
		return model.ProductInfo{}, &model.ResourceError{Err: model.ErrProductInfoUnavailable, App: app}
	}
	return *info, nil
}

// GetServers lists the network's content servers once logged on.
func (s *Session) GetServers(ctx context.Context) ([]model.Server, error) {
	if err := s.ensureLoggedOn(ctx); err != nil {
		return nil, err
	}
	return s.remote.GetServers(ctx)
}

// IssueCDNAuthToken requests a token for depot on host once logged on.
func (s *Session) IssueCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, host string) (model.CDNAuthToken, error) {
	if err := s.ensureLoggedOn(ctx); err != nil {
		return model.CDNAuthToken{}, err
	}
	return s.remote.GetCDNAuthToken(ctx, app, depot, host)
}

// DownloadChunk fetches one chunk from the server named in r.
func (s *Session) DownloadChunk(ctx context.Context, r model.ChunkRequest, dst []byte) (int, error) {
	return s.remote.DownloadChunk(ctx, r, dst)
}
