// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

// ProductInfo is the subset of an application's metadata needed to locate
// its depots and manifests.
type ProductInfo struct {
	AppID        AppID       `json:"appId"`
	ChangeNumber uint32      `json:"changeNumber"`
	Name         string      `json:"name"`
	Depots       []DepotInfo `json:"depots"`
}

// DepotInfo lists the manifests of a depot, keyed by branch name.
type DepotInfo struct {
	DepotID   DepotID                 `json:"depotId"`
	Name      string                  `json:"name,omitempty"`
	Manifests map[string]ManifestInfo `json:"manifests"`
}

type ManifestInfo struct {
	ManifestID   ManifestID `json:"gid"`
	Size         uint64     `json:"size"`
	DownloadSize uint64     `json:"download"`
}
