// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package chunk exposes one manifest file as a sequence of independently
// fetchable chunks.
package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
)

// NominalChunkSize is the chunk granularity of the network. Individual
// chunks may be smaller; ChunkLen is authoritative.
const NominalChunkSize = 1 << 20

var (
	ErrFileNotFound        = errors.New("file not found in manifest")
	ErrIsDirectory         = errors.New("path names a directory")
	ErrInvalidGeometry     = errors.New("chunks do not tile the file")
	ErrIndexOutOfRange     = errors.New("chunk index out of range")
	ErrSyncReadUnsupported = errors.New("synchronous chunk reads are not supported")
	ErrCorruptChunk        = errors.New("corrupt chunk")
	ErrNilDependency       = errors.New("depot keys, server pool and downloader are required")
)

// DepotKeyProvider resolves depot decryption keys.
type DepotKeyProvider interface {
	GetDepotKey(ctx context.Context, app model.AppID, depot model.DepotID) ([]byte, error)
}

// ServerPool hands out the pinned content server and its tokens.
type ServerPool interface {
	GetServer(ctx context.Context) (model.Server, error)
	FailServerIf(s model.Server) bool
	GetCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, server model.Server) (string, error)
}

// Downloader fetches a chunk and writes its plain bytes into dst. The
// returned count is the delivered length, which may exceed len(dst).
type Downloader interface {
	DownloadChunk(ctx context.Context, r model.ChunkRequest, dst []byte) (int, error)
}

// CorruptChunkError reports a chunk whose size differs from the manifest.
type CorruptChunkError struct {
	Index    int
	ChunkID  model.SHA1
	Expected int
	Actual   int
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("%s: chunk %d (%s) expected %d bytes, got %d",
		ErrCorruptChunk.Error(), e.Index, e.ChunkID, e.Expected, e.Actual)
}

func (e *CorruptChunkError) Unwrap() error {
	return ErrCorruptChunk
}

// Config holds the collaborators of a Provider.
type Config struct {
	Keys       DepotKeyProvider
	Pool       ServerPool
	Downloader Downloader

	// Logger to be used by the provider.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger

	// (Optional)
	Measures Measures
}

// Provider knows the chunk geometry of one file and how to fetch its chunks.
// It is safe for concurrent use.
type Provider struct {
	keys     DepotKeyProvider
	pool     ServerPool
	dl       Downloader
	logger   *zap.Logger
	measures Measures

	app    model.AppID
	depot  model.DepotID
	file   model.FileData
	chunks []model.Chunk
}

// NewProvider locates path in m and orders its chunks by offset.
func NewProvider(config Config, app model.AppID, m model.Manifest, path string) (*Provider, error) {
	if config.Keys == nil || config.Pool == nil || config.Downloader == nil {
		return nil, ErrNilDependency
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	f, ok := m.File(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if f.IsDirectory() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	chunks := make([]model.Chunk, len(f.Chunks))
	copy(chunks, f.Chunks)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Offset < chunks[j].Offset
	})

	var next uint64
	for i, c := range chunks {
		if c.Offset != next {
			return nil, fmt.Errorf("%w: %s chunk %d starts at %d, expected %d", ErrInvalidGeometry, path, i, c.Offset, next)
		}
		next += uint64(c.UncompressedSize)
	}
	if next != f.Size {
		return nil, fmt.Errorf("%w: %s chunks cover %d bytes of %d", ErrInvalidGeometry, path, next, f.Size)
	}

	return &Provider{
		keys:     config.Keys,
		pool:     config.Pool,
		dl:       config.Downloader,
		logger:   config.Logger.With(zap.Stringer("depot", m.DepotID), zap.String("path", path)),
		measures: config.Measures,
		app:      app,
		depot:    m.DepotID,
		file:     f,
		chunks:   chunks,
	}, nil
}

// File returns the manifest entry the provider serves.
func (p *Provider) File() model.FileData { return p.file }

// Size is the uncompressed size of the file.
func (p *Provider) Size() uint64 { return p.file.Size }

// ChunkSize is NominalChunkSize.
func (p *Provider) ChunkSize() int { return NominalChunkSize }

func (p *Provider) ChunkCount() int { return len(p.chunks) }

// Offset returns the byte offset of chunk i. Offset(i+1) == Offset(i) +
// ChunkLen(i) for every valid i.
func (p *Provider) Offset(i int) uint64 { return p.chunks[i].Offset }

// ChunkLen returns the uncompressed size of chunk i.
func (p *Provider) ChunkLen(i int) int { return int(p.chunks[i].UncompressedSize) }

// Index returns the chunk holding byte off, or -1 past the end.
func (p *Provider) Index(off uint64) int {
	i := sort.Search(len(p.chunks), func(i int) bool {
		c := p.chunks[i]
		return c.Offset+uint64(c.UncompressedSize) > off
	})
	if i == len(p.chunks) {
		return -1
	}
	return i
}

// ReadChunk always fails; chunks can only be fetched with ReadChunkContext.
func (p *Provider) ReadChunk([]byte, int) error {
	return ErrSyncReadUnsupported
}

// ReadChunkContext downloads chunk i into buf, which must hold ChunkLen(i)
// bytes. A failed download fails the server it was sent to before the error
// is returned; no retry is attempted here.
func (p *Provider) ReadChunkContext(ctx context.Context, buf []byte, i int) error {
	if i < 0 || i >= len(p.chunks) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(p.chunks))
	}
	c := p.chunks[i]
	size := int(c.UncompressedSize)
	if len(buf) < size {
		return io.ErrShortBuffer
	}

	key, err := p.keys.GetDepotKey(ctx, p.app, p.depot)
	if err != nil {
		return err
	}
	server, err := p.pool.GetServer(ctx)
	if err != nil {
		return err
	}
	token, err := p.pool.GetCDNAuthToken(ctx, p.app, p.depot, server)
	if err != nil {
		return err
	}

	n, err := p.dl.DownloadChunk(ctx, model.ChunkRequest{
		Depot:    p.depot,
		Chunk:    c,
		DepotKey: key,
		Server:   server,
		CDNToken: token,
	}, buf[:size])
	if err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			p.pool.FailServerIf(server)
		}
		p.measures.read(FailureOutcome)
		p.logger.Warn("chunk download failed",
			zap.Int("chunk", i), zap.Stringer("chunkId", c.ChunkID),
			zap.String("host", server.Host), zap.Error(err))
		return err
	}

	if n != size {
		p.measures.read(CorruptOutcome)
		return &CorruptChunkError{Index: i, ChunkID: c.ChunkID, Expected: size, Actual: n}
	}
	p.measures.read(SuccessOutcome)
	return nil
}
