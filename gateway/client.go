// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements session.RemoteService against a content gateway
// that speaks JSON over HTTP and terminates the network protocol on our
// behalf.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/bascule/acquire"
	"github.com/xmidt-org/cargo/session"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

var (
	ErrAddressEmpty         = errors.New("gateway address is required")
	ErrAuthAcquirerFailure  = errors.New("failed acquiring auth token")
	ErrFailedAuthentication = errors.New("failed to authenticate with the gateway")
	ErrBadRequest           = errors.New("gateway rejected the request as invalid")
	ErrNotFound             = errors.New("gateway has no such resource")
	ErrNotConnected         = errors.New("gateway is not connected")
)

var (
	errNonSuccessResponse = errors.New("gateway responded with a non-success status code")
	errNewRequestFailure  = errors.New("failed creating an HTTP request")
	errDoRequestFailure   = errors.New("http client failed while sending request")
	errReadingBodyFailure = errors.New("failed while reading http response body")
	errJSONUnmarshal      = errors.New("failed unmarshaling JSON response payload")
	errJSONMarshal        = errors.New("failed marshaling JSON request payload")
)

const (
	apiPath          = "/api/v1"
	errWrappedFmt    = "%w: %s"
	errStatusCodeFmt = "%w: received status %v"
	errorHeaderKey   = "errorHeader"

	// XmidtErrorHeaderKey carries the gateway's error message.
	XmidtErrorHeaderKey = "X-Midt-Error"

	defaultEventWait = 25 * time.Second
)

// ClientConfig contains config data for the client that will be used to
// make requests to the gateway.
type ClientConfig struct {
	// Address is the gateway URL (i.e. http://localhost:6880)
	Address string `validate:"required"`

	// HTTPClient refers to the client that will be used to send requests.
	// (Optional) Defaults to http.DefaultClient.
	HTTPClient *http.Client `mapstructure:"-"`

	// Auth provides the mechanism to add auth headers to outgoing requests.
	// (Optional) If not provided, no auth headers are added.
	Auth Auth

	// EventWait is how long the gateway may hold an event poll open.
	// (Optional) Defaults to 25 seconds.
	EventWait time.Duration

	// Logger to be used by the client.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger `mapstructure:"-"`
}

// Auth contains authorization data for requests to the gateway.
type Auth struct {
	JWT   acquire.RemoteBearerTokenAcquirerOptions
	Basic string
}

// Client is the gateway's RemoteService. It is safe for concurrent use.
type Client struct {
	client    *http.Client
	auth      acquire.Acquirer
	baseURL   string
	eventWait time.Duration
	logger    *zap.Logger
	getLogger func(context.Context) *zap.Logger
	measures  Measures

	connected atomic.Bool

	lock    sync.Mutex
	handler session.EventHandler
	pending []session.Event
}

var _ session.RemoteService = (*Client)(nil)

type response struct {
	Body             []byte
	XmidtErrorHeader string
	Code             int
}

// NewClient creates a new Client that can be used to make requests to the
// gateway. getLogger picks the logger for each request; when nil the
// configured Logger is always used.
func NewClient(config ClientConfig, measures Measures, getLogger func(context.Context) *zap.Logger) (*Client, error) {
	err := validateConfig(&config)
	if err != nil {
		return nil, err
	}
	if getLogger == nil {
		logger := config.Logger
		getLogger = func(context.Context) *zap.Logger { return logger }
	}

	tokenAcquirer, err := buildTokenAcquirer(config.Auth)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:    config.HTTPClient,
		auth:      tokenAcquirer,
		baseURL:   config.Address + apiPath,
		eventWait: config.EventWait,
		logger:    config.Logger,
		getLogger: getLogger,
		measures:  measures,
	}, nil
}

func (c *Client) log(ctx context.Context) *zap.Logger {
	if l := c.getLogger(ctx); l != nil {
		return l
	}
	return c.logger
}

// do sends a request with an optional JSON body and decodes a JSON answer
// into out when out is non-nil. Any non-2xx status is an error.
func (c *Client) do(ctx context.Context, op, method, url string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf(errWrappedFmt, errJSONMarshal, err.Error())
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.sendRequest(ctx, method, url, body)
	c.measures.request(op, resp.Code, err)
	if err != nil {
		return err
	}
	if resp.Code < 200 || resp.Code > 299 {
		c.log(ctx).Error("gateway responded with a non-successful status code",
			zap.String("op", op), zap.Int("code", resp.Code), zap.String(errorHeaderKey, resp.XmidtErrorHeader))
		return fmt.Errorf(errStatusCodeFmt, translateNonSuccessStatusCode(resp.Code), resp.Code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: %w: %s", op, errJSONUnmarshal, err.Error())
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf(errWrappedFmt, errNewRequestFailure, err.Error())
	}
	err = acquire.AddAuth(r, c.auth)
	if err != nil {
		return nil, fmt.Errorf(errWrappedFmt, ErrAuthAcquirerFailure, err.Error())
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	return r, nil
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body io.Reader) (response, error) {
	r, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return response{}, err
	}
	resp, err := c.client.Do(r)
	if err != nil {
		return response{}, fmt.Errorf(errWrappedFmt, errDoRequestFailure, err.Error())
	}
	defer resp.Body.Close()
	var gwResp = response{
		Code:             resp.StatusCode,
		XmidtErrorHeader: resp.Header.Get(XmidtErrorHeaderKey),
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return gwResp, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	gwResp.Body = bodyBytes
	return gwResp, nil
}

func isEmpty(options acquire.RemoteBearerTokenAcquirerOptions) bool {
	return len(options.AuthURL) < 1 || options.Buffer == 0 || options.Timeout == 0
}

// translateNonSuccessStatusCode returns as specific error
// for known gateway status codes.
func translateNonSuccessStatusCode(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrFailedAuthentication
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrNotConnected
	default:
		return errNonSuccessResponse
	}
}

func buildTokenAcquirer(auth Auth) (acquire.Acquirer, error) {
	if !isEmpty(auth.JWT) {
		return acquire.NewRemoteBearerTokenAcquirer(auth.JWT)
	} else if len(auth.Basic) > 0 {
		return acquire.NewFixedAuthAcquirer(auth.Basic)
	}
	return &acquire.DefaultAcquirer{}, nil
}

func validateConfig(config *ClientConfig) error {
	if config.Address == "" {
		return ErrAddressEmpty
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.EventWait <= 0 {
		config.EventWait = defaultEventWait
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	return nil
}
