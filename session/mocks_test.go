// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/cargo/manifest"
	"github.com/xmidt-org/cargo/model"
)

var errBadHost = errors.New("502 bad gateway")

// opLog records the order in which collaborators are called.
type opLog struct {
	lock sync.Mutex
	ops  []string
}

func (o *opLog) add(op string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.ops = append(o.ops, op)
}

func (o *opLog) list() []string {
	o.lock.Lock()
	defer o.lock.Unlock()
	return append([]string(nil), o.ops...)
}

func (o *opLog) count(op string) int {
	n := 0
	for _, v := range o.list() {
		if v == op {
			n++
		}
	}
	return n
}

type fakeChallenge struct {
	url  string
	poll func(ctx context.Context) (model.AuthData, error)
}

func (c *fakeChallenge) URL() string { return c.url }

func (c *fakeChallenge) Poll(ctx context.Context) (model.AuthData, error) {
	return c.poll(ctx)
}

// fakeRemote is an in-process network. Events are queued and only reach the
// session through RunPendingCallback.
type fakeRemote struct {
	log    *opLog
	events chan Event

	lock      sync.Mutex
	handler   EventHandler
	connected bool

	connectErr error

	// logOn decides the events that answer a login. Defaults to ResultOK.
	logOn func(model.AuthData) []Event

	challengeURL     string
	rotatedURLs      []string
	challengeAuth    model.AuthData
	credentialsAuth  model.AuthData
	pollBlocks       chan struct{}
	challengeErr     error
	servers          []model.Server
	depotKey         model.DepotKey
	requestCode      uint64
	productInfo      *model.ProductInfo
	wire             *manifest.Wire
	failManifestHost string
	chunkContent     []byte
	licenses         []uint32
}

func newFakeRemote(log *opLog) *fakeRemote {
	return &fakeRemote{
		log:         log,
		events:      make(chan Event, 16),
		depotKey:    model.DepotKey{Result: model.ResultOK, Key: []byte("depot-key")},
		requestCode: 4242,
	}
}

func (f *fakeRemote) emit(events ...Event) {
	for _, e := range events {
		f.events <- e
	}
}

func (f *fakeRemote) Connect(context.Context) error {
	f.log.add("connect")
	if f.connectErr != nil {
		return f.connectErr
	}
	f.lock.Lock()
	f.connected = true
	f.lock.Unlock()
	f.emit(EventConnected{}, EventLicenseList{PackageIDs: f.packages()})
	return nil
}

func (f *fakeRemote) packages() []uint32 {
	if f.licenses != nil {
		return f.licenses
	}
	return []uint32{0}
}

func (f *fakeRemote) IsConnected() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.connected
}

// drop loses the connection. When notify is set the remote also queues
// EventDisconnected, otherwise only IsConnected reflects the loss.
func (f *fakeRemote) drop(notify bool) {
	f.lock.Lock()
	f.connected = false
	f.lock.Unlock()
	if notify {
		f.emit(EventDisconnected{})
	}
}

func (f *fakeRemote) Subscribe(h EventHandler) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.handler = h
}

func (f *fakeRemote) RunPendingCallback(ctx context.Context) error {
	select {
	case e := <-f.events:
		f.dispatch(e)
		return nil
	default:
	}

	select {
	case e := <-f.events:
		f.dispatch(e)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) dispatch(e Event) {
	f.lock.Lock()
	h := f.handler
	f.lock.Unlock()
	h(e)
}

func (f *fakeRemote) LogOn(_ context.Context, auth model.AuthData) error {
	f.log.add("logon:" + auth.RefreshToken)
	if f.logOn != nil {
		f.emit(f.logOn(auth)...)
		return nil
	}
	f.emit(EventLoggedOn{Result: model.ResultOK})
	return nil
}

func (f *fakeRemote) BeginChallengeAuth(_ context.Context, onURLChange func(string)) (LoginChallenge, error) {
	f.log.add("challenge")
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	return &fakeChallenge{
		url: f.challengeURL,
		poll: func(ctx context.Context) (model.AuthData, error) {
			for _, u := range f.rotatedURLs {
				onURLChange(u)
			}
			if f.pollBlocks != nil {
				select {
				case <-f.pollBlocks:
				case <-ctx.Done():
					return model.AuthData{}, ctx.Err()
				}
			}
			return f.challengeAuth, nil
		},
	}, nil
}

func (f *fakeRemote) BeginCredentialsAuth(_ context.Context, username, password string) (LoginChallenge, error) {
	f.log.add("credentials:" + username + ":" + password)
	return &fakeChallenge{
		poll: func(context.Context) (model.AuthData, error) {
			return f.credentialsAuth, nil
		},
	}, nil
}

func (f *fakeRemote) GetServers(context.Context) ([]model.Server, error) {
	f.log.add("servers")
	return f.servers, nil
}

func (f *fakeRemote) GetManifestRequestCode(_ context.Context, _ model.AppID, _ model.DepotID, _ model.ManifestID, branch string) (uint64, error) {
	f.log.add("code:" + branch)
	return f.requestCode, nil
}

func (f *fakeRemote) GetDepotKey(context.Context, model.AppID, model.DepotID) (model.DepotKey, error) {
	f.log.add("key")
	return f.depotKey, nil
}

func (f *fakeRemote) GetCDNAuthToken(_ context.Context, _ model.AppID, _ model.DepotID, host string) (model.CDNAuthToken, error) {
	f.log.add("token:" + host)
	return model.CDNAuthToken{Result: model.ResultOK, Token: "cdn-" + host}, nil
}

func (f *fakeRemote) GetProductInfo(context.Context, model.AppID) (*model.ProductInfo, error) {
	f.log.add("info")
	return f.productInfo, nil
}

func (f *fakeRemote) DownloadManifest(_ context.Context, r model.ManifestRequest) (*manifest.Wire, error) {
	f.log.add("manifest:" + r.Server.Host)
	if r.Server.Host == f.failManifestHost {
		return nil, errBadHost
	}
	return f.wire, nil
}

func (f *fakeRemote) DownloadChunk(_ context.Context, r model.ChunkRequest, dst []byte) (int, error) {
	f.log.add("chunk:" + r.Server.Host)
	end := r.Chunk.Offset + uint64(r.Chunk.UncompressedSize)
	return copy(dst, f.chunkContent[r.Chunk.Offset:end]), nil
}

type MockAuthStorage struct {
	mock.Mock
	log *opLog
}

func (m *MockAuthStorage) TryLoad(ctx context.Context) (bool, []byte, error) {
	args := m.Called(ctx)
	data, _ := args.Get(1).([]byte)
	return args.Bool(0), data, args.Error(2)
}

func (m *MockAuthStorage) Save(ctx context.Context, data []byte) error {
	m.log.add("save")
	args := m.Called(ctx, data)
	return args.Error(0)
}

type fakeIntervention struct {
	log *opLog

	lock sync.Mutex
	urls []string
}

func (f *fakeIntervention) ShowLoginChallenge(_ context.Context, u *url.URL) {
	f.log.add("show")
	f.lock.Lock()
	defer f.lock.Unlock()
	f.urls = append(f.urls, u.String())
}

func (f *fakeIntervention) shown() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.urls...)
}
