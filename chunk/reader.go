// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 48
	DefaultPrefetch  = 32

	prefetchConcurrency = 8
)

var errNegativeOffset = errors.New("negative offset")

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	// CacheSize is the number of chunks kept in memory.
	// (Optional) Defaults to 48.
	CacheSize int

	// Prefetch is the number of chunks following a missed chunk that are
	// fetched along with it.
	// (Optional) Defaults to 0.
	Prefetch int
}

// Reader presents a Provider as a random access byte stream. Reads use the
// context given to NewReader.
type Reader struct {
	ctx      context.Context
	provider *Provider
	prefetch int
	chunks   *lru.Cache[int, []byte]
	fetches  singleflight.Group

	lock sync.Mutex
	pos  int64
}

var (
	_ io.ReaderAt   = (*Reader)(nil)
	_ io.ReadSeeker = (*Reader)(nil)
)

func NewReader(ctx context.Context, p *Provider, config ReaderConfig) (*Reader, error) {
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}
	if config.Prefetch < 0 {
		config.Prefetch = 0
	}
	c, err := lru.New[int, []byte](config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Reader{
		ctx:      ctx,
		provider: p,
		prefetch: config.Prefetch,
		chunks:   c,
	}, nil
}

// Size is the size of the file in bytes.
func (r *Reader) Size() int64 {
	return int64(r.provider.Size())
}

func (r *Reader) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}

	var n int
	for n < len(b) {
		pos := uint64(off) + uint64(n)
		i := r.provider.Index(pos)
		if i < 0 {
			return n, io.EOF
		}
		data, err := r.chunk(i)
		if err != nil {
			return n, err
		}
		n += copy(b[n:], data[pos-r.provider.Offset(i):])
	}
	if uint64(off)+uint64(n) >= r.provider.Size() {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) Read(b []byte) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n, err := r.ReadAt(b, r.pos)
	r.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += r.pos
	case io.SeekEnd:
		offset += r.Size()
	default:
		return 0, errors.New("invalid whence")
	}
	if offset < 0 {
		return 0, errNegativeOffset
	}
	r.pos = offset
	return offset, nil
}

// chunk returns the bytes of chunk i, fetching it and the chunks to prefetch
// on a miss.
func (r *Reader) chunk(i int) ([]byte, error) {
	if data, ok := r.chunks.Get(i); ok {
		return data, nil
	}

	last := i + r.prefetch
	if last >= r.provider.ChunkCount() {
		last = r.provider.ChunkCount() - 1
	}

	var g errgroup.Group
	g.SetLimit(prefetchConcurrency)
	for j := i + 1; j <= last; j++ {
		if r.chunks.Contains(j) {
			continue
		}
		g.Go(func() error {
			_, err := r.fetch(r.ctx, j)
			return err
		})
	}

	data, err := r.fetch(r.ctx, i)

	// read-ahead failures surface when those chunks are read
	_ = g.Wait()
	return data, err
}

func (r *Reader) fetch(ctx context.Context, i int) ([]byte, error) {
	v, err, _ := r.fetches.Do(strconv.Itoa(i), func() (interface{}, error) {
		if data, ok := r.chunks.Get(i); ok {
			return data, nil
		}
		buf := make([]byte, r.provider.ChunkLen(i))
		if err := r.provider.ReadChunkContext(ctx, buf, i); err != nil {
			return nil, err
		}
		r.chunks.Add(i, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
