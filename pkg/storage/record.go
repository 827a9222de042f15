// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// Record is a bundle store entry: the bundle itself plus the meta data the Forwarder needs to drive it through its
// lifecycle, as described by the bundle record data model — BID → { bundle bytes, state, attempts, next earliest
// retry, expiry time, forwarded-to set }.
type Record struct {
	Id  string
	BId bpv7.BundleID

	Bundle bpv7.Bundle

	State State

	// Attempts counts failed forwarding attempts, used to compute the next backoff delay.
	Attempts int

	// NextRetry is the earliest time a further forwarding attempt should be made; zero means "retry immediately".
	NextRetry time.Time

	// Expires is this bundle's absolute expiry time, derived from its creation timestamp and lifetime.
	Expires time.Time

	// ForwardedTo is the set of peer node IDs which have acknowledged custody or full transfer of this bundle,
	// consulted to avoid resending to a hop that already has it.
	ForwardedTo map[bpv7.EndpointID]struct{}
}

// isPending reports whether r is still awaiting some future action: not yet in a terminal State, and either due for
// an immediate attempt or whose NextRetry has elapsed as of now.
func (r Record) isPending(now time.Time) bool {
	if r.State.Terminal() {
		return false
	}
	return r.NextRetry.IsZero() || !r.NextRetry.After(now)
}

// calcExpirationDate derives a bundle's absolute expiry from its creation timestamp and lifetime.
func calcExpirationDate(b bpv7.Bundle) time.Time {
	return b.PrimaryBlock.CreationTimestamp.DtnTime().Time().Add(
		time.Duration(b.PrimaryBlock.Lifetime) * time.Millisecond)
}

// newRecord creates a fresh Accepted Record for a Bundle.
func newRecord(b bpv7.Bundle) Record {
	bid := b.ID()

	return Record{
		Id:  bid.String(),
		BId: bid,

		Bundle: b,

		State: Accepted,

		Expires: calcExpirationDate(b),

		ForwardedTo: make(map[bpv7.EndpointID]struct{}),
	}
}
