// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/model"
)

const (
	defaultReaderCacheSize = chunk.DefaultCacheSize
	defaultReaderPrefetch  = chunk.DefaultPrefetch
)

// ChunkProvider returns a provider for path in m that fetches its chunks
// through this session and its server pool.
func (s *Session) ChunkProvider(app model.AppID, m model.Manifest, path string) (*chunk.Provider, error) {
	return chunk.NewProvider(chunk.Config{
		Keys:       s,
		Pool:       s.pool,
		Downloader: s,
		Logger:     s.logger,
		Measures:   s.measures.Chunks,
	}, app, m, path)
}

// OpenFile returns a reader over path in m. Reads are bound to ctx.
func (s *Session) OpenFile(ctx context.Context, app model.AppID, m model.Manifest, path string) (*chunk.Reader, error) {
	p, err := s.ChunkProvider(app, m, path)
	if err != nil {
		return nil, err
	}
	return chunk.NewReader(ctx, p, chunk.ReaderConfig{
		CacheSize: s.config.ReaderCacheSize,
		Prefetch:  s.config.ReaderPrefetch,
	})
}
