// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestAuthDataRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	in := AuthData{Username: "gabe", RefreshToken: "eyJ.token.value"}
	data, err := in.Marshal()
	require.NoError(err)

	out, err := UnmarshalAuthData(data)
	require.NoError(err)
	assert.Equal(in, out)
}

func TestUnmarshalAuthData(t *testing.T) {
	tcs := []struct {
		Description string
		Input       string
		ExpectedErr error
		ShouldErr   bool
	}{
		{
			Description: "Not JSON",
			Input:       "{",
			ShouldErr:   true,
		},
		{
			Description: "Missing token",
			Input:       `{"username":"gabe"}`,
			ExpectedErr: ErrAuthDataEmpty,
			ShouldErr:   true,
		},
		{
			Description: "Valid",
			Input:       `{"username":"gabe","refreshToken":"abc"}`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			_, err := UnmarshalAuthData([]byte(tc.Input))
			if !tc.ShouldErr {
				assert.NoError(err)
				return
			}
			assert.Error(err)
			if tc.ExpectedErr != nil {
				assert.ErrorIs(err, tc.ExpectedErr)
			}
		})
	}
}

func TestAuthDataExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tcs := []struct {
		Description   string
		Token         func(t *testing.T) string
		ExpectKnown   bool
		ExpectExpired bool
	}{
		{
			Description: "Opaque token",
			Token:       func(*testing.T) string { return "not-a-jwt" },
		},
		{
			Description: "JWT without exp",
			Token: func(t *testing.T) string {
				return signedToken(t, jwt.MapClaims{"sub": "76561197960287930"})
			},
		},
		{
			Description: "Expired",
			Token: func(t *testing.T) string {
				return signedToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()})
			},
			ExpectKnown:   true,
			ExpectExpired: true,
		},
		{
			Description: "Valid",
			Token: func(t *testing.T) string {
				return signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
			},
			ExpectKnown: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			a := AuthData{Username: "gabe", RefreshToken: tc.Token(t)}
			_, known := a.ExpiresAt()
			assert.Equal(tc.ExpectKnown, known)
			assert.Equal(tc.ExpectExpired, a.Expired(now))
		})
	}
}

func TestSHA1Text(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h, err := ParseSHA1("da39a3ee5e6b4b0d3255bfef95601890afd80709")
	require.NoError(err)
	assert.False(h.IsZero())

	data, err := json.Marshal(Chunk{ChunkID: h, Offset: 10})
	require.NoError(err)
	assert.Contains(string(data), `"id":"da39a3ee5e6b4b0d3255bfef95601890afd80709"`)

	_, err = ParseSHA1("abc")
	assert.Error(err)
	_, err = ParseSHA1("zz39a3ee5e6b4b0d3255bfef95601890afd80709")
	assert.Error(err)
}

func TestManifestFile(t *testing.T) {
	assert := assert.New(t)
	m := Manifest{Files: []FileData{{Path: "bin/game.exe", Size: 3}, {Path: "data", Flags: FileFlagDirectory}}}

	f, ok := m.File("bin/game.exe")
	assert.True(ok)
	assert.Equal(uint64(3), f.Size)
	assert.False(f.IsDirectory())

	d, ok := m.File("data")
	assert.True(ok)
	assert.True(d.IsDirectory())

	_, ok = m.File("missing")
	assert.False(ok)
}

func TestServerBaseURL(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("https://cache1.example.net", Server{Host: "cache1.example.net"}.BaseURL())
	assert.Equal("http://10.0.0.1:8080", Server{Host: "10.0.0.1:8080", Protocol: "http"}.BaseURL())
}
