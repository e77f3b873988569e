// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/url"

	"github.com/xmidt-org/cargo/manifest"
	"github.com/xmidt-org/cargo/model"
)

// RemoteService is the transport to the distribution network. Requests
// resolve on their own; events are only delivered while RunPendingCallback
// is being driven.
type RemoteService interface {
	// Connect starts connecting. Completion is signaled by EventConnected.
	Connect(ctx context.Context) error

	// IsConnected reports whether the connection is still up.
	IsConnected() bool

	// Subscribe registers the handler that receives every inbound event.
	Subscribe(h EventHandler)

	// RunPendingCallback dispatches at most one pending event, blocking
	// until one arrives or ctx is done. An event that is already queued is
	// dispatched even when ctx is done.
	RunPendingCallback(ctx context.Context) error

	// LogOn submits a login. The outcome arrives as EventLoggedOn.
	LogOn(ctx context.Context, auth model.AuthData) error

	// BeginChallengeAuth starts an interactive (QR) login. onURLChange is
	// called whenever the network rotates the challenge URL.
	BeginChallengeAuth(ctx context.Context, onURLChange func(string)) (LoginChallenge, error)

	BeginCredentialsAuth(ctx context.Context, username, password string) (LoginChallenge, error)

	GetServers(ctx context.Context) ([]model.Server, error)
	GetManifestRequestCode(ctx context.Context, app model.AppID, depot model.DepotID, manifest model.ManifestID, branch string) (uint64, error)
	GetDepotKey(ctx context.Context, app model.AppID, depot model.DepotID) (model.DepotKey, error)
	GetCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, host string) (model.CDNAuthToken, error)
	GetProductInfo(ctx context.Context, app model.AppID) (*model.ProductInfo, error)

	DownloadManifest(ctx context.Context, r model.ManifestRequest) (*manifest.Wire, error)

	// DownloadChunk writes the plain chunk bytes into dst and returns the
	// length delivered. Bytes beyond len(dst) are counted but discarded.
	DownloadChunk(ctx context.Context, r model.ChunkRequest, dst []byte) (int, error)
}

// LoginChallenge is an in-progress interactive login.
type LoginChallenge interface {
	// URL is the challenge to present to the user. It may be empty for
	// challenges confirmed out of band.
	URL() string

	// Poll blocks until the user completes the challenge.
	Poll(ctx context.Context) (model.AuthData, error)
}

// AuthStorage persists the serialized AuthData.
type AuthStorage interface {
	TryLoad(ctx context.Context) (found bool, data []byte, err error)
	Save(ctx context.Context, data []byte) error
}

// AuthInterventionHandler presents a login challenge to the user. It is
// called on the login path and must not block.
type AuthInterventionHandler interface {
	ShowLoginChallenge(ctx context.Context, uri *url.URL)
}

// Event is delivered by the RemoteService through RunPendingCallback.
type Event interface {
	event()
}

type EventHandler func(Event)

type EventConnected struct{}

type EventDisconnected struct {
	UserInitiated bool
}

type EventLoggedOn struct {
	Result model.Result
}

type EventLicenseList struct {
	PackageIDs []uint32
}

func (EventConnected) event()    {}
func (EventDisconnected) event() {}
func (EventLoggedOn) event()     {}
func (EventLicenseList) event()  {}
