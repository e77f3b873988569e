// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Result is the status code the network attaches to responses.
type Result int

const (
	ResultInvalid      Result = 0
	ResultOK           Result = 1
	ResultFail         Result = 2
	ResultAccessDenied Result = 15
	ResultTimeout      Result = 16
	ResultExpired      Result = 27
)

var resultNames = map[Result]string{
	ResultInvalid:      "Invalid",
	ResultOK:           "OK",
	ResultFail:         "Fail",
	ResultAccessDenied: "AccessDenied",
	ResultTimeout:      "Timeout",
	ResultExpired:      "Expired",
}

func (r Result) String() string {
	if n, ok := resultNames[r]; ok {
		return n
	}
	return "Result(" + strconv.Itoa(int(r)) + ")"
}

// DepotKey is the response to a depot decryption key request.
type DepotKey struct {
	Result Result
	Key    []byte
}

// CDNAuthToken is the response to a CDN authorization token request.
// Expiration is informational; tokens are cached until the process exits.
type CDNAuthToken struct {
	Result     Result
	Token      string
	Expiration time.Time
}

// Errors naming the resource that could not be obtained. They are returned
// wrapped in a *ResourceError.
var (
	ErrResourceUnavailable    = errors.New("resource unavailable")
	ErrDepotKeyUnavailable    = errors.New("depot key unavailable")
	ErrRequestCodeUnavailable = errors.New("manifest request code unavailable")
	ErrCDNAuthUnavailable     = errors.New("cdn auth token unavailable")
	ErrProductInfoUnavailable = errors.New("product info unavailable")
)

// ResourceError reports a non-OK answer for a keyed resource. Unset key
// fields are left out of the message.
type ResourceError struct {
	Err      error
	Result   Result
	App      AppID
	Depot    DepotID
	Manifest ManifestID
	Branch   string
	Host     string
}

func (e *ResourceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	fmt.Fprintf(&b, ": app=%d depot=%d", e.App, e.Depot)
	if e.Manifest != 0 {
		fmt.Fprintf(&b, " manifest=%d", e.Manifest)
	}
	if e.Branch != "" {
		fmt.Fprintf(&b, " branch=%s", e.Branch)
	}
	if e.Host != "" {
		fmt.Fprintf(&b, " host=%s", e.Host)
	}
	if e.Result != ResultInvalid {
		fmt.Fprintf(&b, " result=%s", e.Result)
	}
	return b.String()
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrResourceUnavailable for every resource.
func (e *ResourceError) Is(target error) bool {
	return target == ErrResourceUnavailable
}
