// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/spf13/cast"
)

var (
	ErrAuthDataEmpty = errors.New("auth data requires a username and refresh token")

	errAuthDataUnmarshal = errors.New("failed unmarshaling auth data")
)

// AuthData is the persisted login material. It is replaced wholesale on
// every successful login.
type AuthData struct {
	Username     string `json:"username"`
	RefreshToken string `json:"refreshToken"`
}

// Marshal serializes the AuthData for an AuthStorage.
func (a AuthData) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAuthData is the inverse of AuthData.Marshal.
func UnmarshalAuthData(data []byte) (AuthData, error) {
	var a AuthData
	if err := json.Unmarshal(data, &a); err != nil {
		return AuthData{}, fmt.Errorf("%w: %s", errAuthDataUnmarshal, err.Error())
	}
	if a.Username == "" || a.RefreshToken == "" {
		return AuthData{}, ErrAuthDataEmpty
	}
	return a, nil
}

// ExpiresAt reads the exp claim of the refresh token. The token signature is
// not verified; the network is the authority on validity. The second return
// is false when the token is not a JWT or carries no exp claim.
func (a AuthData) ExpiresAt() (time.Time, bool) {
	token, _, err := new(jwt.Parser).ParseUnverified(a.RefreshToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, false
	}
	raw, ok := claims["exp"]
	if !ok {
		return time.Time{}, false
	}
	exp, err := cast.ToInt64E(raw)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(exp, 0), true
}

// Expired reports whether the refresh token is known to be expired at now.
func (a AuthData) Expired(now time.Time) bool {
	exp, ok := a.ExpiresAt()
	return ok && !now.Before(exp)
}
