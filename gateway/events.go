// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xmidt-org/cargo/model"
	"github.com/xmidt-org/cargo/session"
	"go.uber.org/zap"
)

// Event types as sent by the gateway.
const (
	connectedType    = "connected"
	disconnectedType = "disconnected"
	loggedOnType     = "loggedOn"
	licenseListType  = "licenseList"
)

type wireEvent struct {
	Type          string       `json:"type"`
	Result        model.Result `json:"result,omitempty"`
	UserInitiated bool         `json:"userInitiated,omitempty"`
	PackageIDs    []uint32     `json:"packageIds,omitempty"`
}

func (w wireEvent) event() (session.Event, bool) {
	switch w.Type {
	case connectedType:
		return session.EventConnected{}, true
	case disconnectedType:
		return session.EventDisconnected{UserInitiated: w.UserInitiated}, true
	case loggedOnType:
		return session.EventLoggedOn{Result: w.Result}, true
	case licenseListType:
		return session.EventLicenseList{PackageIDs: w.PackageIDs}, true
	}
	return nil, false
}

// Connect asks the gateway to open its connection to the network.
func (c *Client) Connect(ctx context.Context) error {
	return c.do(ctx, "connect", http.MethodPost, c.baseURL+"/connect", nil, nil)
}

// IsConnected reflects the last connection event dispatched.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Subscribe(h session.EventHandler) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.handler = h
}

// RunPendingCallback dispatches one queued event. When nothing is queued the
// gateway is long-polled until events arrive or ctx is done.
func (c *Client) RunPendingCallback(ctx context.Context) error {
	for {
		e, h, ok := c.next()
		if ok {
			c.track(e)
			if h != nil {
				h(e)
			}
			return nil
		}

		if err := c.poll(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) next() (session.Event, session.EventHandler, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.pending) == 0 {
		return nil, nil, false
	}
	e := c.pending[0]
	c.pending = c.pending[1:]
	return e, c.handler, true
}

func (c *Client) track(e session.Event) {
	switch e.(type) {
	case session.EventConnected:
		c.connected.Store(true)
	case session.EventDisconnected:
		c.connected.Store(false)
	}
}

func (c *Client) poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var events []wireEvent
	url := fmt.Sprintf("%s/events?wait=%s", c.baseURL, c.eventWait)
	err := c.do(ctx, "events", http.MethodGet, url, nil, &events)
	c.measures.polled(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	for _, w := range events {
		e, ok := w.event()
		if !ok {
			c.log(ctx).Debug("ignoring unknown gateway event", zap.String("type", w.Type))
			continue
		}
		c.pending = append(c.pending, e)
	}
	return nil
}
