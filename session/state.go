// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

// State is the connection and login state of a Session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	LoggedOn
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case LoggedOn:
		return "logged_on"
	default:
		return "unknown"
	}
}
