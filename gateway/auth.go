// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/xmidt-org/cargo/model"
	"github.com/xmidt-org/cargo/session"
	"go.uber.org/zap"
)

// ErrChallengeFailed is returned by a challenge's Poll when the gateway
// reports that the user or the network rejected the login.
var ErrChallengeFailed = errors.New("login challenge failed")

var errUnexpectedStatus = errors.New("unexpected challenge status")

// Challenge states reported by the gateway.
const (
	challengePending  = "pending"
	challengeComplete = "complete"
	challengeFailed   = "failed"
)

type challengeStart struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type challengeStatus struct {
	Status       string `json:"status"`
	URL          string `json:"url,omitempty"`
	Username     string `json:"username,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Error        string `json:"error,omitempty"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LogOn submits auth. The result is delivered as an EventLoggedOn.
func (c *Client) LogOn(ctx context.Context, auth model.AuthData) error {
	return c.do(ctx, "logon", http.MethodPost, c.baseURL+"/logon", auth, nil)
}

func (c *Client) BeginChallengeAuth(ctx context.Context, onURLChange func(string)) (session.LoginChallenge, error) {
	var start challengeStart
	if err := c.do(ctx, "challenge", http.MethodPost, c.baseURL+"/auth/qr", nil, &start); err != nil {
		return nil, err
	}
	return c.newChallenge(start, onURLChange), nil
}

func (c *Client) BeginCredentialsAuth(ctx context.Context, username, password string) (session.LoginChallenge, error) {
	var start challengeStart
	err := c.do(ctx, "credentials", http.MethodPost, c.baseURL+"/auth/credentials",
		credentials{Username: username, Password: password}, &start)
	if err != nil {
		return nil, err
	}
	return c.newChallenge(start, nil), nil
}

func (c *Client) newChallenge(start challengeStart, onURLChange func(string)) *challenge {
	return &challenge{
		client:      c,
		id:          start.ID,
		url:         start.URL,
		onURLChange: onURLChange,
	}
}

type challenge struct {
	client      *Client
	id          string
	url         string
	onURLChange func(string)
}

func (ch *challenge) URL() string {
	return ch.url
}

// Poll long-polls the gateway until the challenge is resolved.
func (ch *challenge) Poll(ctx context.Context) (model.AuthData, error) {
	c := ch.client
	statusURL := fmt.Sprintf("%s/auth/challenges/%s?wait=%s", c.baseURL, url.PathEscape(ch.id), c.eventWait)
	for {
		var status challengeStatus
		if err := c.do(ctx, "challengeStatus", http.MethodGet, statusURL, nil, &status); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.AuthData{}, ctxErr
			}
			return model.AuthData{}, err
		}

		switch status.Status {
		case challengeComplete:
			return model.AuthData{Username: status.Username, RefreshToken: status.RefreshToken}, nil
		case challengeFailed:
			return model.AuthData{}, fmt.Errorf(errWrappedFmt, ErrChallengeFailed, status.Error)
		case challengePending:
			if status.URL != "" && status.URL != ch.url {
				ch.url = status.URL
				if ch.onURLChange != nil {
					ch.onURLChange(status.URL)
				}
			}
		default:
			c.log(ctx).Error("unexpected challenge status", zap.String("status", status.Status))
			return model.AuthData{}, fmt.Errorf("%w: %q", errUnexpectedStatus, status.Status)
		}

		if err := ctx.Err(); err != nil {
			return model.AuthData{}, err
		}
	}
}
