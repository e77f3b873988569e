// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// AppID identifies an application (title) on the distribution network.
type AppID uint32

// DepotID identifies a depot belonging to an application.
type DepotID uint32

// ManifestID identifies one manifest of a depot.
type ManifestID uint64

func (a AppID) String() string      { return strconv.FormatUint(uint64(a), 10) }
func (d DepotID) String() string    { return strconv.FormatUint(uint64(d), 10) }
func (m ManifestID) String() string { return strconv.FormatUint(uint64(m), 10) }

// DefaultBranch is the branch used when callers do not name one.
const DefaultBranch = "public"

// ServerKindCDN is the role of servers able to serve depot content.
const ServerKindCDN = "CDN"

// Server describes an edge endpoint. Servers are pooled by Host.
type Server struct {
	// Host is the host name (and optional port) used to reach the server.
	Host string `json:"host"`

	// Kind is the role of the server, i.e. "CDN" or "SteamCache".
	Kind string `json:"type"`

	CellID       uint32  `json:"cellId,omitempty"`
	Load         float64 `json:"load,omitempty"`
	WeightedLoad float64 `json:"weightedLoad,omitempty"`

	// Protocol is either "http" or "https".
	// (Optional) Defaults to https when empty.
	Protocol string `json:"protocol,omitempty"`
}

// BaseURL returns the scheme and host used for content requests.
func (s Server) BaseURL() string {
	p := s.Protocol
	if p == "" {
		p = "https"
	}
	return p + "://" + s.Host
}

var errInvalidSHA1 = errors.New("invalid sha1 hex string")

// SHA1 is a content hash. It marshals to lower case hex.
type SHA1 [20]byte

func (s SHA1) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether the hash is unset.
func (s SHA1) IsZero() bool {
	return s == SHA1{}
}

func (s SHA1) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SHA1) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(s)) {
		return fmt.Errorf("%w: %q", errInvalidSHA1, text)
	}
	_, err := hex.Decode(s[:], text)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidSHA1, err.Error())
	}
	return nil
}

// ParseSHA1 decodes a hex encoded hash.
func ParseSHA1(s string) (SHA1, error) {
	var h SHA1
	err := h.UnmarshalText([]byte(s))
	return h, err
}

// Manifest is the listing of a depot's files at one point in time.
// A Manifest is never mutated after parsing and may be shared freely.
type Manifest struct {
	ManifestID            ManifestID `json:"manifestId"`
	DepotID               DepotID    `json:"depotId"`
	CreationTime          time.Time  `json:"creationTime"`
	TotalCompressedSize   uint64     `json:"totalCompressedSize"`
	TotalUncompressedSize uint64     `json:"totalUncompressedSize"`
	Files                 []FileData `json:"files"`
}

// File returns the entry with the given relative path.
func (m Manifest) File(path string) (FileData, bool) {
	for _, f := range m.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileData{}, false
}

// FileFlagDirectory marks entries that describe directories.
const FileFlagDirectory uint32 = 0x40

// FileData is one file of a manifest. Size equals the sum of the
// uncompressed sizes of its chunks.
type FileData struct {
	// Path is relative to the depot root and always uses forward slashes.
	Path   string  `json:"path"`
	Size   uint64  `json:"size"`
	Hash   SHA1    `json:"hash"`
	Flags  uint32  `json:"flags,omitempty"`
	Chunks []Chunk `json:"chunks"`
}

func (f FileData) IsDirectory() bool {
	return f.Flags&FileFlagDirectory != 0
}

// Chunk is the unit of content fetched from an edge server.
type Chunk struct {
	ChunkID          SHA1   `json:"id"`
	Offset           uint64 `json:"offset"`
	CompressedSize   uint32 `json:"compressedSize"`
	UncompressedSize uint32 `json:"uncompressedSize"`
	Checksum         uint32 `json:"checksum"`
}
