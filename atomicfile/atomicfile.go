// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers never see a partial
// write.
package atomicfile

import (
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Write replaces path with data. Missing parent directories are created
// with dirPerm. The data is written to a temporary file next to path which
// is then renamed over it.
func Write(afs afero.Fs, path string, data []byte, perm, dirPerm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := afs.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := afero.TempFile(afs, dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = afs.Remove(name)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := afs.Chmod(name, perm); err != nil {
		return err
	}
	return afs.Rename(name, path)
}
