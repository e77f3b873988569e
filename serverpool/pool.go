// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package serverpool keeps the set of edge servers used for content
// downloads. One server is pinned at a time; only an explicit failure moves
// the pin to another server.
package serverpool

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hailocab/go-hostpool"
	"github.com/xmidt-org/cargo/cache"
	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoServers       = errors.New("no content servers available")
	ErrNilServerLister = errors.New("a server lister is required")
	ErrNilTokenIssuer  = errors.New("a cdn token issuer is required")

	errServerFailed = errors.New("server failed")
)

// ServerLister queries the network for its current server list.
type ServerLister interface {
	GetServers(ctx context.Context) ([]model.Server, error)
}

// CDNTokenIssuer requests per depot authorization tokens for a server.
type CDNTokenIssuer interface {
	IssueCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, host string) (model.CDNAuthToken, error)
}

// Config configures a Pool.
type Config struct {
	// Kinds are the server roles kept from the server list.
	// (Optional) Defaults to []string{"CDN"}.
	Kinds []string

	// Shuffle randomizes the server order on every refresh. When false, the
	// network's order is kept.
	// (Optional) Defaults to false.
	Shuffle bool

	// RefreshTimeout bounds one server list refresh. A refresh is shared by
	// every caller waiting on it and is not bound to any one caller's context.
	// (Optional) Defaults to 30 seconds.
	RefreshTimeout time.Duration

	// Logger to be used by the pool.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger
}

const defaultRefreshTimeout = 30 * time.Second

type tokenKey struct {
	host  string
	depot model.DepotID
}

type pin struct {
	server   model.Server
	response hostpool.HostPoolResponse
}

// Pool is safe for concurrent use.
type Pool struct {
	lister   ServerLister
	issuer   CDNTokenIssuer
	kinds    map[string]bool
	shuffle  func([]model.Server)
	logger   *zap.Logger
	measures Measures
	tokens   *cache.Keyed[tokenKey, string]

	refresh        singleflight.Group
	refreshTimeout time.Duration

	lock       sync.Mutex
	candidates map[string]model.Server
	order      []model.Server
	hosts      hostpool.HostPool
	pinned     *pin
	generation uint64
}

// New creates an empty Pool. The server list is fetched on first use.
func New(config Config, lister ServerLister, issuer CDNTokenIssuer, measures Measures) (*Pool, error) {
	if lister == nil {
		return nil, ErrNilServerLister
	}
	if issuer == nil {
		return nil, ErrNilTokenIssuer
	}
	validateConfig(&config)

	p := &Pool{
		lister:   lister,
		issuer:   issuer,
		kinds:    make(map[string]bool, len(config.Kinds)),
		logger:   config.Logger,
		measures: measures,
		tokens:   cache.NewKeyed[tokenKey, string](),

		refreshTimeout: config.RefreshTimeout,
	}
	for _, k := range config.Kinds {
		p.kinds[k] = true
	}
	if config.Shuffle {
		p.shuffle = func(s []model.Server) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		}
	}
	return p, nil
}

func validateConfig(config *Config) {
	if len(config.Kinds) == 0 {
		config.Kinds = []string{model.ServerKindCDN}
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = defaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
}

// GetServer returns the pinned server, pinning one first if needed. An empty
// pool is repopulated from the network.
func (p *Pool) GetServer(ctx context.Context) (model.Server, error) {
	for {
		p.lock.Lock()
		if s, ok := p.pinLocked(); ok {
			p.lock.Unlock()
			return s, nil
		}
		gen := p.generation
		p.lock.Unlock()

		refreshed := p.refresh.DoChan("servers", func() (interface{}, error) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.refreshTimeout)
			defer cancel()
			return nil, p.populate(rctx, gen)
		})
		select {
		case <-ctx.Done():
			return model.Server{}, ctx.Err()
		case r := <-refreshed:
			if r.Err != nil {
				return model.Server{}, r.Err
			}
		}
	}
}

// pinLocked must be called with the lock held.
func (p *Pool) pinLocked() (model.Server, bool) {
	if p.pinned != nil {
		return p.pinned.server, true
	}
	if len(p.candidates) == 0 || p.hosts == nil {
		return model.Server{}, false
	}

	// dead hosts come back from the host pool once their retry delay
	// passes, so anything not in candidates is handed back and skipped.
	for range p.order {
		r := p.hosts.Get()
		s, ok := p.candidates[r.Host()]
		if !ok {
			continue
		}
		p.pinned = &pin{server: s, response: r}
		p.logger.Debug("pinned content server", zap.String("host", s.Host))
		return s, true
	}
	for _, s := range p.order {
		if _, ok := p.candidates[s.Host]; ok {
			p.pinned = &pin{server: s}
			return s, true
		}
	}
	return model.Server{}, false
}

func (p *Pool) populate(ctx context.Context, gen uint64) error {
	servers, err := p.lister.GetServers(ctx)
	if err != nil {
		p.measures.refreshed(FailureOutcome)
		return err
	}

	var (
		list       = make([]model.Server, 0, len(servers))
		candidates = make(map[string]model.Server, len(servers))
	)
	for _, s := range servers {
		if !p.kinds[s.Kind] {
			continue
		}
		if _, dup := candidates[s.Host]; dup {
			continue
		}
		candidates[s.Host] = s
		list = append(list, s)
	}
	if len(list) == 0 {
		p.measures.refreshed(EmptyOutcome)
		return ErrNoServers
	}
	if p.shuffle != nil {
		p.shuffle(list)
	}

	hosts := make([]string, len(list))
	for i, s := range list {
		hosts[i] = s.Host
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.measures.refreshed(SuccessOutcome)
	if p.generation != gen {
		return nil
	}
	if p.hosts != nil {
		p.hosts.Close()
	}
	p.candidates = candidates
	p.order = list
	p.hosts = hostpool.New(hosts)
	p.generation++
	p.logger.Info("refreshed content server list", zap.Int("servers", len(list)), zap.Int("received", len(servers)))
	return nil
}

// FailServer unpins the current server and drops it from the candidates.
func (p *Pool) FailServer() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failLocked()
}

// FailServerIf fails the pinned server only if it is s, so that readers
// sharing one failure do not evict a replacement pinned in between. It
// reports whether s was failed.
func (p *Pool) FailServerIf(s model.Server) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.pinned == nil || p.pinned.server.Host != s.Host {
		return false
	}
	p.failLocked()
	return true
}

func (p *Pool) failLocked() {
	if p.pinned == nil {
		return
	}
	host := p.pinned.server.Host
	if p.pinned.response != nil {
		p.pinned.response.Mark(errServerFailed)
	}
	delete(p.candidates, host)
	p.pinned = nil
	if len(p.candidates) == 0 && p.hosts != nil {
		p.hosts.Close()
		p.hosts = nil
	}
	p.measures.failed(host)
	p.logger.Warn("content server failed", zap.String("host", host), zap.Int("remaining", len(p.candidates)))
}

// GetCDNAuthToken returns the token for depot on server, fetching it once
// per (host, depot). Tokens are never refreshed.
func (p *Pool) GetCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, server model.Server) (string, error) {
	token, _, err := p.tokens.Fetch(ctx, tokenKey{host: server.Host, depot: depot},
		func(ctx context.Context) (string, error) {
			r, err := p.issuer.IssueCDNAuthToken(ctx, app, depot, server.Host)
			if err != nil {
				return "", err
			}
			if r.Result != model.ResultOK {
				return "", &model.ResourceError{
					Err:    model.ErrCDNAuthUnavailable,
					Result: r.Result,
					App:    app,
					Depot:  depot,
					Host:   server.Host,
				}
			}
			return r.Token, nil
		})
	return token, err
}
