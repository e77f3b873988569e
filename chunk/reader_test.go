// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cargo/model"
)

func newTestReader(t *testing.T, config ReaderConfig, sizes ...uint32) (*Reader, *fakeDownloader, []byte) {
	var total int
	for _, s := range sizes {
		total += int(s)
	}
	content := testContent(total)
	dl := &fakeDownloader{content: content}
	p := newTestProvider(t, newTestPool(t, serverA, serverB), dl, testManifest(content, sizes...))
	r, err := NewReader(context.Background(), p, config)
	require.NoError(t, err)
	return r, dl, content
}

func TestReaderReadAt(t *testing.T) {
	tcs := []struct {
		Description string
		Offset      int64
		Length      int
		ExpectedN   int
		ExpectedErr error
	}{
		{
			Description: "Within first chunk",
			Offset:      10,
			Length:      100,
			ExpectedN:   100,
		},
		{
			Description: "Across a chunk boundary",
			Offset:      1000,
			Length:      100,
			ExpectedN:   100,
		},
		{
			Description: "Whole file",
			Length:      3072,
			ExpectedN:   3072,
			ExpectedErr: io.EOF,
		},
		{
			Description: "Past the end",
			Offset:      3000,
			Length:      200,
			ExpectedN:   72,
			ExpectedErr: io.EOF,
		},
		{
			Description: "At the end",
			Offset:      3072,
			Length:      1,
			ExpectedErr: io.EOF,
		},
		{
			Description: "Negative offset",
			Offset:      -1,
			Length:      1,
			ExpectedErr: errNegativeOffset,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			r, _, content := newTestReader(t, ReaderConfig{}, 1024, 2048)

			b := make([]byte, tc.Length)
			n, err := r.ReadAt(b, tc.Offset)
			assert.Equal(tc.ExpectedN, n)
			assert.ErrorIs(err, tc.ExpectedErr)
			if tc.ExpectedN > 0 {
				assert.Equal(content[tc.Offset:tc.Offset+int64(n)], b[:n])
			}
		})
	}
}

func TestReaderSequential(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	r, _, content := newTestReader(t, ReaderConfig{}, 1024, 2048, 512)

	assert.Equal(int64(len(content)), r.Size())
	got, err := io.ReadAll(r)
	require.NoError(err)
	assert.Equal(content, got)

	pos, err := r.Seek(-512, io.SeekEnd)
	require.NoError(err)
	assert.Equal(int64(len(content)-512), pos)

	pos, err = r.Seek(2, io.SeekCurrent)
	require.NoError(err)
	assert.Equal(int64(len(content)-510), pos)

	b := make([]byte, 10)
	n, err := r.Read(b)
	require.NoError(err)
	assert.Equal(10, n)
	assert.Equal(content[pos:pos+10], b)

	_, err = r.Seek(-1, io.SeekStart)
	assert.ErrorIs(err, errNegativeOffset)
	_, err = r.Seek(0, 42)
	assert.Error(err)
}

func TestReaderCachesChunks(t *testing.T) {
	assert := assert.New(t)
	r, dl, _ := newTestReader(t, ReaderConfig{}, 1024, 2048)

	b := make([]byte, 16)
	for i := 0; i < 5; i++ {
		_, err := r.ReadAt(b, 1100)
		assert.NoError(err)
	}
	assert.Equal(1, dl.callCount())
}

func TestReaderEvicts(t *testing.T) {
	assert := assert.New(t)
	r, dl, _ := newTestReader(t, ReaderConfig{CacheSize: 1}, 1024, 2048)

	b := make([]byte, 16)
	for i := 0; i < 3; i++ {
		_, err := r.ReadAt(b, 0)
		assert.NoError(err)
		_, err = r.ReadAt(b, 2000)
		assert.NoError(err)
	}
	assert.Equal(6, dl.callCount())
}

func TestReaderPrefetch(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	r, dl, content := newTestReader(t, ReaderConfig{Prefetch: 2}, 256, 256, 256, 256, 256)

	b := make([]byte, 16)
	_, err := r.ReadAt(b, 0)
	require.NoError(err)
	assert.Equal(3, dl.callCount())

	for _, off := range []int64{256, 512} {
		_, err = r.ReadAt(b, off)
		require.NoError(err)
		assert.Equal(content[off:off+16], b)
	}
	assert.Equal(3, dl.callCount())

	_, err = r.ReadAt(b, 768)
	require.NoError(err)
	assert.Equal(5, dl.callCount())
}

func TestReaderPrefetchFailureIsDeferred(t *testing.T) {
	assert := assert.New(t)
	content := testContent(512)
	dl := &fakeDownloader{
		content: content,
		fail: func(r model.ChunkRequest) error {
			if r.Chunk.Offset == 256 {
				return errDownload
			}
			return nil
		},
	}
	p := newTestProvider(t, newTestPool(t, serverA, serverB), dl, testManifest(content, 256, 256))
	r, err := NewReader(context.Background(), p, ReaderConfig{Prefetch: 1})
	require.NoError(t, err)

	b := make([]byte, 16)
	_, err = r.ReadAt(b, 0)
	assert.NoError(err)
	assert.Equal(content[:16], b)

	_, err = r.ReadAt(b, 300)
	assert.ErrorIs(err, errDownload)
}
