// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package indexer walks every manifest of an app and records the hashes of
// the files they contain.
//
// The output directory is laid out as:
//
//	stores/steam/apps/<app>.json
//	stores/steam/manifests/<manifest>.json
//	hashes/<first two hex digits>/<sha1 hex>.json
//
// Hash records already present are never recomputed, so an index can be
// updated in place.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/xmidt-org/cargo/chunk"
	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidConfig = errors.New("invalid indexer config")
	ErrNilService    = errors.New("a content service is required")
	ErrHashMismatch  = errors.New("downloaded file does not match its manifest hash")
)

const (
	defaultParallelism = 4

	storesDir = "stores/steam"
	hashesDir = "hashes"
)

// Service is the content lookup the indexer drives. *session.Session
// satisfies it.
type Service interface {
	GetProductInfo(ctx context.Context, app model.AppID) (model.ProductInfo, error)
	GetManifestContents(ctx context.Context, app model.AppID, depot model.DepotID, m model.ManifestID, branch string) (model.Manifest, error)
	OpenFile(ctx context.Context, app model.AppID, m model.Manifest, path string) (*chunk.Reader, error)
}

type Config struct {
	// Output is the index directory. It is created if missing.
	Output string `validate:"required"`

	// Parallelism bounds concurrent manifest downloads, and separately the
	// concurrent file downloads of each manifest.
	// (Optional) Defaults to 4.
	Parallelism int `validate:"gte=0"`

	// Fs is the filesystem the index is written to.
	// (Optional) Defaults to the operating system's.
	Fs afero.Fs `mapstructure:"-"`

	// Logger to be used by the indexer.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger `mapstructure:"-"`
}

// Stats summarizes one Index run.
type Stats struct {
	Manifests        int64
	SkippedManifests int64
	HashedFiles      int64
	KnownFiles       int64
}

type Indexer struct {
	service     Service
	fs          afero.Fs
	output      string
	parallelism int
	logger      *zap.Logger

	lock  sync.Mutex
	known map[model.SHA1]struct{}
}

func New(config Config, s Service) (*Indexer, error) {
	if s == nil {
		return nil, ErrNilService
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &Indexer{
		service:     s,
		fs:          config.Fs,
		output:      config.Output,
		parallelism: config.Parallelism,
		logger:      config.Logger,
	}, nil
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}
	if config.Parallelism == 0 {
		config.Parallelism = defaultParallelism
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return nil
}

type manifestJob struct {
	depot    model.DepotID
	branch   string
	manifest model.ManifestID
}

// Index writes the product info of app, each of its manifests and a hash
// record for every file not yet indexed. Manifests without a request code
// are skipped; any other failure aborts the run.
func (ix *Indexer) Index(ctx context.Context, app model.AppID) (Stats, error) {
	var stats Stats

	info, err := ix.service.GetProductInfo(ctx, app)
	if err != nil {
		return stats, err
	}

	ix.known, err = loadExisting(ix.fs, filepath.Join(ix.output, hashesDir), ix.logger)
	if err != nil {
		return stats, err
	}
	ix.logger.Info("loaded existing hashes", zap.Int("count", len(ix.known)))

	err = writeJSON(ix.fs, filepath.Join(ix.output, storesDir, "apps", fmt.Sprintf("%d.json", info.AppID)), info)
	if err != nil {
		return stats, err
	}

	var jobs []manifestJob
	for _, d := range info.Depots {
		for branch, m := range d.Manifests {
			jobs = append(jobs, manifestJob{depot: d.DepotID, branch: branch, manifest: m.ManifestID})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallelism)
	for _, job := range jobs {
		g.Go(func() error {
			return ix.indexManifest(gctx, app, job, &stats)
		})
	}
	err = g.Wait()

	ix.logger.Info("index finished",
		zap.Uint32("app", uint32(app)),
		zap.Int64("manifests", atomic.LoadInt64(&stats.Manifests)),
		zap.Int64("skipped", atomic.LoadInt64(&stats.SkippedManifests)),
		zap.Int64("hashed", atomic.LoadInt64(&stats.HashedFiles)),
		zap.Int64("known", atomic.LoadInt64(&stats.KnownFiles)),
		zap.Error(err))
	return stats, err
}

func (ix *Indexer) indexManifest(ctx context.Context, app model.AppID, job manifestJob, stats *Stats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := ix.logger.With(
		zap.Uint32("depot", uint32(job.depot)),
		zap.Uint64("manifest", uint64(job.manifest)),
		zap.String("branch", job.branch))

	m, err := ix.service.GetManifestContents(ctx, app, job.depot, job.manifest, job.branch)
	if errors.Is(err, model.ErrRequestCodeUnavailable) {
		logger.Warn("skipping manifest", zap.Error(err))
		atomic.AddInt64(&stats.SkippedManifests, 1)
		return nil
	}
	if err != nil {
		return err
	}

	err = writeJSON(ix.fs, filepath.Join(ix.output, storesDir, "manifests", fmt.Sprintf("%d.json", m.ManifestID)), m)
	if err != nil {
		return err
	}
	atomic.AddInt64(&stats.Manifests, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.parallelism)
	for _, f := range m.Files {
		if f.Size == 0 || f.IsDirectory() {
			continue
		}
		if !ix.claim(f.Hash) {
			atomic.AddInt64(&stats.KnownFiles, 1)
			continue
		}
		g.Go(func() error {
			err := ix.indexFile(gctx, app, m, f)
			if err != nil {
				ix.release(f.Hash)
				return err
			}
			atomic.AddInt64(&stats.HashedFiles, 1)
			logger.Debug("indexed file", zap.String("path", f.Path), zap.Stringer("sha1", f.Hash))
			return nil
		})
	}
	return g.Wait()
}

func (ix *Indexer) indexFile(ctx context.Context, app model.AppID, m model.Manifest, f model.FileData) error {
	r, err := ix.service.OpenFile(ctx, app, m, f.Path)
	if err != nil {
		return err
	}
	record, err := hashReader(r)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", f.Path, err)
	}
	if record.SHA1 != f.Hash {
		return fmt.Errorf("%w: path=%s expected=%s got=%s", ErrHashMismatch, f.Path, f.Hash, record.SHA1)
	}
	return writeJSON(ix.fs, recordPath(ix.output, record.XxHash3), record)
}

// claim reserves h for hashing, reporting false when it is already indexed
// or being indexed.
func (ix *Indexer) claim(h model.SHA1) bool {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if _, ok := ix.known[h]; ok {
		return false
	}
	ix.known[h] = struct{}{}
	return true
}

func (ix *Indexer) release(h model.SHA1) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	delete(ix.known, h)
}
