// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xmidt-org/cargo/manifest"
	"github.com/xmidt-org/cargo/model"
	"go.uber.org/zap"
)

type requestCodeResponse struct {
	Code uint64 `json:"code"`
}

type depotKeyResponse struct {
	Result model.Result `json:"result"`
	Key    []byte       `json:"key"`
}

type cdnTokenResponse struct {
	Result     model.Result `json:"result"`
	Token      string       `json:"token"`
	Expiration time.Time    `json:"expiration"`
}

type manifestRequest struct {
	App         model.AppID      `json:"appId"`
	Depot       model.DepotID    `json:"depotId"`
	Manifest    model.ManifestID `json:"manifestId"`
	Branch      string           `json:"branch,omitempty"`
	RequestCode uint64           `json:"requestCode"`
	DepotKey    []byte           `json:"depotKey"`
	Server      model.Server     `json:"server"`
	CDNToken    string           `json:"cdnToken,omitempty"`
}

type chunkRequest struct {
	Depot    model.DepotID `json:"depotId"`
	Chunk    model.Chunk   `json:"chunk"`
	DepotKey []byte        `json:"depotKey"`
	Server   model.Server  `json:"server"`
	CDNToken string        `json:"cdnToken,omitempty"`
}

func (c *Client) depotURL(app model.AppID, depot model.DepotID) string {
	return fmt.Sprintf("%s/apps/%d/depots/%d", c.baseURL, app, depot)
}

func (c *Client) GetServers(ctx context.Context) ([]model.Server, error) {
	var servers []model.Server
	if err := c.do(ctx, "servers", http.MethodGet, c.baseURL+"/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// GetManifestRequestCode returns 0 when the gateway has no code to give.
func (c *Client) GetManifestRequestCode(ctx context.Context, app model.AppID, depot model.DepotID, m model.ManifestID, branch string) (uint64, error) {
	var resp requestCodeResponse
	u := fmt.Sprintf("%s/manifests/%d/code?branch=%s", c.depotURL(app, depot), m, url.QueryEscape(branch))
	if err := c.do(ctx, "requestCode", http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Code, nil
}

func (c *Client) GetDepotKey(ctx context.Context, app model.AppID, depot model.DepotID) (model.DepotKey, error) {
	var resp depotKeyResponse
	if err := c.do(ctx, "depotKey", http.MethodGet, c.depotURL(app, depot)+"/key", nil, &resp); err != nil {
		return model.DepotKey{}, err
	}
	return model.DepotKey{Result: resp.Result, Key: resp.Key}, nil
}

func (c *Client) GetCDNAuthToken(ctx context.Context, app model.AppID, depot model.DepotID, host string) (model.CDNAuthToken, error) {
	var resp cdnTokenResponse
	u := c.depotURL(app, depot) + "/cdn-token?host=" + url.QueryEscape(host)
	if err := c.do(ctx, "cdnToken", http.MethodGet, u, nil, &resp); err != nil {
		return model.CDNAuthToken{}, err
	}
	return model.CDNAuthToken{Result: resp.Result, Token: resp.Token, Expiration: resp.Expiration}, nil
}

// GetProductInfo returns nil, nil when the gateway knows nothing of app.
func (c *Client) GetProductInfo(ctx context.Context, app model.AppID) (*model.ProductInfo, error) {
	var info model.ProductInfo
	err := c.do(ctx, "productInfo", http.MethodGet, fmt.Sprintf("%s/apps/%d", c.baseURL, app), nil, &info)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &info, nil
}

func (c *Client) DownloadManifest(ctx context.Context, r model.ManifestRequest) (*manifest.Wire, error) {
	var w manifest.Wire
	err := c.do(ctx, "manifest", http.MethodPost, c.baseURL+"/manifests/download", manifestRequest{
		App:         r.App,
		Depot:       r.Depot,
		Manifest:    r.Manifest,
		Branch:      r.Branch,
		RequestCode: r.RequestCode,
		DepotKey:    r.DepotKey,
		Server:      r.Server,
		CDNToken:    r.CDNToken,
	}, &w)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// DownloadChunk streams the chunk body into dst. A short body is not an
// error here; the caller compares the returned length against the manifest.
func (c *Client) DownloadChunk(ctx context.Context, r model.ChunkRequest, dst []byte) (int, error) {
	data, err := json.Marshal(chunkRequest{
		Depot:    r.Depot,
		Chunk:    r.Chunk,
		DepotKey: r.DepotKey,
		Server:   r.Server,
		CDNToken: r.CDNToken,
	})
	if err != nil {
		return 0, fmt.Errorf(errWrappedFmt, errJSONMarshal, err.Error())
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/chunks/download", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.measures.request("chunk", 0, err)
		return 0, fmt.Errorf(errWrappedFmt, errDoRequestFailure, err.Error())
	}
	defer resp.Body.Close()
	c.measures.request("chunk", resp.StatusCode, nil)

	if resp.StatusCode != http.StatusOK {
		c.log(ctx).Error("gateway responded with a non-successful status code",
			zap.String("op", "chunk"), zap.Int("code", resp.StatusCode),
			zap.String(errorHeaderKey, resp.Header.Get(XmidtErrorHeaderKey)))
		return 0, fmt.Errorf(errStatusCodeFmt, translateNonSuccessStatusCode(resp.StatusCode), resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, dst)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	case err != nil:
		return n, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}

	extra, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return n, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	return n + int(extra), nil
}
