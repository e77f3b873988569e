// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package indexer

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/xmidt-org/cargo/atomicfile"
	"github.com/xmidt-org/cargo/model"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// HashRecord describes one distinct file content. Records are stored under
// their XxHash3.
type HashRecord struct {
	XxHash3  string     `json:"xxhash3"`
	XxHash64 string     `json:"xxhash64"`
	SHA1     model.SHA1 `json:"sha1"`
	MD5      string     `json:"md5"`
	CRC32    string     `json:"crc32"`
	Size     uint64     `json:"size"`
}

// formatHash64 renders a 64 bit hash as 16 lowercase hex digits.
func formatHash64(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

func hashReader(r io.Reader) (HashRecord, error) {
	var (
		s  = sha1.New()
		m  = md5.New()
		c  = crc32.NewIEEE()
		x3 = xxh3.New()
		x  = xxhash.New()
	)
	n, err := io.Copy(io.MultiWriter(s, m, c, x3, x), r)
	if err != nil {
		return HashRecord{}, err
	}
	var record HashRecord
	record.XxHash3 = formatHash64(x3.Sum64())
	record.XxHash64 = formatHash64(x.Sum64())
	copy(record.SHA1[:], s.Sum(nil))
	record.MD5 = hex.EncodeToString(m.Sum(nil))
	record.CRC32 = hex.EncodeToString(c.Sum(nil))
	record.Size = uint64(n)
	return record, nil
}

// recordPath is hashes/<first two digits>/<xxhash3>.json under output.
func recordPath(output, xxHash3 string) string {
	return filepath.Join(output, hashesDir, xxHash3[:2], xxHash3+".json")
}

// loadExisting reads every hash record under dir. Unreadable records are
// logged and skipped, so they will be recomputed.
func loadExisting(afs afero.Fs, dir string, logger *zap.Logger) (map[model.SHA1]struct{}, error) {
	known := make(map[model.SHA1]struct{})
	err := afero.Walk(afs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := afero.ReadFile(afs, path)
		if err != nil {
			logger.Warn("failed reading hash record", zap.String("path", path), zap.Error(err))
			return nil
		}
		var record HashRecord
		if err := json.Unmarshal(data, &record); err != nil || record.SHA1.IsZero() {
			logger.Warn("ignoring malformed hash record", zap.String("path", path), zap.Error(err))
			return nil
		}
		known[record.SHA1] = struct{}{}
		return nil
	})
	return known, err
}

// writeJSON replaces path with the indented encoding of v. Readers never see
// a partial file.
func writeJSON(afs afero.Fs, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(afs, path, data, filePerm, dirPerm)
}
