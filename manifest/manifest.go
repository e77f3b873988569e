// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package manifest converts depot manifests as delivered by the content
// gateway into the domain model.
package manifest

import (
	"errors"
	"strings"
	"time"

	"github.com/xmidt-org/cargo/model"
)

// ErrEncryptedFilenames is returned by ParseChecked when the manifest still
// carries encrypted file names.
var ErrEncryptedFilenames = errors.New("manifest file names are encrypted")

// Wire is the manifest body as decoded from the gateway.
type Wire struct {
	DepotID               model.DepotID    `json:"depotId"`
	ManifestID            model.ManifestID `json:"manifestId"`
	CreationTime          int64            `json:"creationTime"`
	FilenamesEncrypted    bool             `json:"filenamesEncrypted"`
	TotalCompressedSize   uint64           `json:"totalCompressedSize"`
	TotalUncompressedSize uint64           `json:"totalUncompressedSize"`
	Files                 []WireFile       `json:"files"`
}

type WireFile struct {
	FileName string      `json:"fileName"`
	Size     uint64      `json:"totalSize"`
	Flags    uint32      `json:"flags"`
	Hash     model.SHA1  `json:"fileHash"`
	Chunks   []WireChunk `json:"chunks"`
}

type WireChunk struct {
	ChunkID            model.SHA1 `json:"chunkId"`
	Checksum           uint32     `json:"checksum"`
	Offset             uint64     `json:"offset"`
	CompressedLength   uint32     `json:"compressedLength"`
	UncompressedLength uint32     `json:"uncompressedLength"`
}

// Parse copies w into a Manifest. Chunk order is preserved as delivered.
// A nil or file-less manifest yields an empty, non-nil file list.
func Parse(w *Wire) model.Manifest {
	if w == nil {
		return model.Manifest{Files: []model.FileData{}}
	}

	m := model.Manifest{
		ManifestID:            w.ManifestID,
		DepotID:               w.DepotID,
		CreationTime:          time.Unix(w.CreationTime, 0).UTC(),
		TotalCompressedSize:   w.TotalCompressedSize,
		TotalUncompressedSize: w.TotalUncompressedSize,
		Files:                 make([]model.FileData, 0, len(w.Files)),
	}

	for _, wf := range w.Files {
		f := model.FileData{
			Path:   normalizePath(wf.FileName),
			Size:   wf.Size,
			Hash:   wf.Hash,
			Flags:  wf.Flags,
			Chunks: make([]model.Chunk, 0, len(wf.Chunks)),
		}
		for _, wc := range wf.Chunks {
			f.Chunks = append(f.Chunks, model.Chunk{
				ChunkID:          wc.ChunkID,
				Offset:           wc.Offset,
				CompressedSize:   wc.CompressedLength,
				UncompressedSize: wc.UncompressedLength,
				Checksum:         wc.Checksum,
			})
		}
		m.Files = append(m.Files, f)
	}
	return m
}

// ParseChecked is Parse, but refuses manifests whose file names were not
// decrypted upstream.
func ParseChecked(w *Wire) (model.Manifest, error) {
	if w != nil && w.FilenamesEncrypted {
		return model.Manifest{}, ErrEncryptedFilenames
	}
	return Parse(w), nil
}

// the network delivers windows separators
func normalizePath(p string) string {
	return strings.TrimPrefix(strings.ReplaceAll(p, `\`, "/"), "/")
}
