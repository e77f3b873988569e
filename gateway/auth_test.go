// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cargo/model"
)

func challengeRoutes(t *testing.T, statuses []challengeStatus) func(r *mux.Router) {
	var polls int32
	return func(r *mux.Router) {
		r.HandleFunc("/auth/qr", func(rw http.ResponseWriter, _ *http.Request) {
			writeJSON(t, rw, challengeStart{ID: "q1", URL: "https://login.example.net/q/1"})
		}).Methods(http.MethodPost)
		r.HandleFunc("/auth/credentials", func(rw http.ResponseWriter, req *http.Request) {
			var creds credentials
			require.NoError(t, json.NewDecoder(req.Body).Decode(&creds))
			assert.Equal(t, credentials{Username: "gordon", Password: "crowbar"}, creds)
			writeJSON(t, rw, challengeStart{ID: "c1"})
		}).Methods(http.MethodPost)
		r.HandleFunc("/auth/challenges/{id}", func(rw http.ResponseWriter, _ *http.Request) {
			i := atomic.AddInt32(&polls, 1) - 1
			writeJSON(t, rw, statuses[i])
		}).Methods(http.MethodGet)
	}
}

func TestChallengeAuth(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c := newTestClient(t, Measures{}, challengeRoutes(t, []challengeStatus{
		{Status: challengePending, URL: "https://login.example.net/q/1"},
		{Status: challengePending, URL: "https://login.example.net/q/2"},
		{Status: challengePending},
		{Status: challengeComplete, Username: "gordon", RefreshToken: "fresh"},
	}))

	var rotated []string
	ch, err := c.BeginChallengeAuth(context.Background(), func(u string) {
		rotated = append(rotated, u)
	})
	require.NoError(err)
	assert.Equal("https://login.example.net/q/1", ch.URL())

	auth, err := ch.Poll(context.Background())
	require.NoError(err)
	assert.Equal(model.AuthData{Username: "gordon", RefreshToken: "fresh"}, auth)
	assert.Equal([]string{"https://login.example.net/q/2"}, rotated)
	assert.Equal("https://login.example.net/q/2", ch.URL())
}

func TestCredentialsAuth(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c := newTestClient(t, Measures{}, challengeRoutes(t, []challengeStatus{
		{Status: challengeComplete, Username: "gordon", RefreshToken: "fresh"},
	}))

	ch, err := c.BeginCredentialsAuth(context.Background(), "gordon", "crowbar")
	require.NoError(err)
	assert.Empty(ch.URL())

	auth, err := ch.Poll(context.Background())
	require.NoError(err)
	assert.Equal("fresh", auth.RefreshToken)
}

func TestChallengePollErrors(t *testing.T) {
	tcs := []struct {
		Description string
		Status      challengeStatus
		ExpectedErr error
	}{
		{
			Description: "Rejected",
			Status:      challengeStatus{Status: challengeFailed, Error: "denied on device"},
			ExpectedErr: ErrChallengeFailed,
		},
		{
			Description: "Unknown status",
			Status:      challengeStatus{Status: "sideways"},
			ExpectedErr: errUnexpectedStatus,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			c := newTestClient(t, Measures{}, challengeRoutes(t, []challengeStatus{tc.Status}))
			ch, err := c.BeginChallengeAuth(context.Background(), nil)
			require.NoError(t, err)
			_, err = ch.Poll(context.Background())
			assert.ErrorIs(err, tc.ExpectedErr)
		})
	}
}

func TestLogOn(t *testing.T) {
	assert := assert.New(t)

	var got model.AuthData
	c := newTestClient(t, Measures{}, func(r *mux.Router) {
		r.HandleFunc("/logon", func(rw http.ResponseWriter, req *http.Request) {
			assert.Equal("application/json", req.Header.Get("Content-Type"))
			assert.NoError(json.NewDecoder(req.Body).Decode(&got))
			rw.WriteHeader(http.StatusAccepted)
		}).Methods(http.MethodPost)
	})

	auth := model.AuthData{Username: "gordon", RefreshToken: "stored"}
	assert.NoError(c.LogOn(context.Background(), auth))
	assert.Equal(auth, got)
}
