// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package file stores auth data in a private file on the local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/xmidt-org/cargo/atomicfile"
	"github.com/xmidt-org/cargo/authstore"
	"go.uber.org/zap"
)

const (
	defaultDir = ".cargo"

	filePerm = 0o600
	dirPerm  = 0o700
)

var errWriteFailed = errors.New("failed writing auth file")

type Config struct {
	// Dir holds one file per key.
	// (Optional) Defaults to .cargo under the home directory.
	Dir string

	// Key names the record, and the file within Dir.
	// (Optional) Defaults to "default".
	Key string
}

type File struct {
	fs       afero.Fs
	path     string
	logger   *zap.Logger
	measures authstore.Measures
}

// NewFile stores auth data on the operating system's filesystem.
func NewFile(config Config, measures authstore.Measures, logger *zap.Logger) (*File, error) {
	return newFile(afero.NewOsFs(), config, measures, logger)
}

func newFile(afs afero.Fs, config Config, measures authstore.Measures, logger *zap.Logger) (*File, error) {
	if config.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		config.Dir = filepath.Join(home, defaultDir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &File{
		fs:       afs,
		path:     filepath.Join(config.Dir, authstore.Key(config.Key)+".json"),
		logger:   logger,
		measures: measures,
	}, nil
}

func (f *File) TryLoad(_ context.Context) (bool, []byte, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.measures.Query(authstore.LoadType, nil)
		return false, nil, nil
	}
	f.measures.Query(authstore.LoadType, err)
	if err != nil {
		return false, nil, err
	}
	return true, data, nil
}

// Save replaces the file atomically. It is never left half written.
func (f *File) Save(_ context.Context, data []byte) error {
	if len(data) == 0 {
		return authstore.ErrEmptyData
	}
	err := f.write(data)
	f.measures.Query(authstore.SaveType, err)
	if err != nil {
		return fmt.Errorf("%w: %w", errWriteFailed, err)
	}
	f.logger.Debug("saved auth data", zap.String("path", f.path))
	return nil
}

func (f *File) write(data []byte) error {
	return atomicfile.Write(f.fs, f.path, data, filePerm, dirPerm)
}
