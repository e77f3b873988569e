// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package atomicfile

import (
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	tcs := []struct {
		Description string
		Existing    []byte
		Perm        fs.FileMode
	}{
		{
			Description: "New file",
			Perm:        0o644,
		},
		{
			Description: "Replaces existing file",
			Existing:    []byte("old contents that are longer"),
			Perm:        0o600,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			afs := afero.NewMemMapFs()
			path := "/data/nested/record.json"
			if tc.Existing != nil {
				require.NoError(afero.WriteFile(afs, path, tc.Existing, 0o666))
			}

			require.NoError(Write(afs, path, []byte("new"), tc.Perm, 0o700))

			data, err := afero.ReadFile(afs, path)
			require.NoError(err)
			assert.Equal("new", string(data))

			info, err := afs.Stat(path)
			require.NoError(err)
			assert.Equal(tc.Perm, info.Mode().Perm())

			entries, err := afero.ReadDir(afs, "/data/nested")
			require.NoError(err)
			require.Len(entries, 1)
			assert.Equal("record.json", entries[0].Name())
		})
	}
}

func TestWriteReadOnly(t *testing.T) {
	assert := assert.New(t)

	base := afero.NewMemMapFs()
	afs := afero.NewReadOnlyFs(base)
	assert.Error(Write(afs, "/data/record.json", []byte("new"), 0o644, 0o755))

	ok, err := afero.Exists(base, "/data/record.json")
	assert.NoError(err)
	assert.False(ok)
}
