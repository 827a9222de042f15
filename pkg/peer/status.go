// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package peer tracks the set of known or discovered bundle nodes and the lifecycle of the CLA connection to each
// one, independent of the convergence layer protocol in use.
package peer

// Status describes the current state of a Peer's connection lifecycle.
type Status int

const (
	// StatusDialing means no connection attempt is currently underway; the next scheduled attempt, if any, has not
	// started yet.
	StatusDialing Status = iota

	// StatusConnecting means a dial is underway and the resulting link has not yet reached an established session.
	StatusConnecting

	// StatusEstablished means a convergence layer session with this Peer is up and a route has been published.
	StatusEstablished

	// StatusFailed means the last connection attempt or an established session ended in an error; a retry is
	// scheduled after an exponential backoff.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDialing:
		return "Dialing"
	case StatusConnecting:
		return "Connecting"
	case StatusEstablished:
		return "Established"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
