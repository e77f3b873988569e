// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

// ManifestRequest carries everything an edge server needs to hand out a
// manifest.
type ManifestRequest struct {
	App         AppID
	Depot       DepotID
	Manifest    ManifestID
	Branch      string
	RequestCode uint64
	DepotKey    []byte
	Server      Server
	CDNToken    string
}

// ChunkRequest carries everything an edge server needs to hand out one
// chunk. The chunk is decrypted with DepotKey and decompressed before it is
// copied to the caller's buffer.
type ChunkRequest struct {
	Depot    DepotID
	Chunk    Chunk
	DepotKey []byte
	Server   Server
	CDNToken string
}
