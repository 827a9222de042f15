// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sync"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// reassemblyKey identifies a single original bundle's fragments, per §4.1: source EID, creation timestamp, and
// total ADU length.
type reassemblyKey struct {
	source    bpv7.EndpointID
	timestamp bpv7.CreationTimestamp
	total     uint64
}

type reassemblyEntry struct {
	fragments []bpv7.Bundle

	// expires is the shared creation-timestamp-plus-lifetime deadline every fragment of this bundle carries; the
	// buffer is discarded once it passes, whichever fragment arrived first.
	expires time.Time
}

// reassemblyTracker buffers inbound bundle fragments until their offset ranges cover [0, total), per §4.1's
// reassembly rule. A buffer is indexed by reassemblyKey and discarded, incomplete, once its deadline elapses.
type reassemblyTracker struct {
	mutex   sync.Mutex
	pending map[reassemblyKey]*reassemblyEntry
}

func newReassemblyTracker() *reassemblyTracker {
	return &reassemblyTracker{pending: make(map[reassemblyKey]*reassemblyEntry)}
}

// add records a newly arrived fragment. It reports the complete fragment set and ok=true once every offset in
// [0, total) has arrived; otherwise ok is false and the fragment is held for a later arrival.
func (rt *reassemblyTracker) add(frag bpv7.Bundle) (fragments []bpv7.Bundle, ok bool) {
	pb := frag.PrimaryBlock
	key := reassemblyKey{source: pb.SourceNode, timestamp: pb.CreationTimestamp, total: pb.TotalDataLength}

	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	entry, exists := rt.pending[key]
	if !exists {
		entry = &reassemblyEntry{expires: fragmentExpiry(frag)}
		rt.pending[key] = entry
	}
	entry.fragments = append(entry.fragments, frag)

	if !bpv7.IsBundleReassemblable(entry.fragments) {
		return nil, false
	}

	delete(rt.pending, key)
	return entry.fragments, true
}

// expireDue drops every reassembly buffer whose deadline has passed as of now, discarding the partial reassembly.
func (rt *reassemblyTracker) expireDue(now time.Time) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	for key, entry := range rt.pending {
		if now.After(entry.expires) {
			delete(rt.pending, key)
		}
	}
}

// fragmentExpiry derives a fragment's absolute expiry from its shared creation timestamp and lifetime — the same
// value for every fragment of one original bundle, so the first arrival already fixes the buffer's deadline.
func fragmentExpiry(b bpv7.Bundle) time.Time {
	return b.PrimaryBlock.CreationTimestamp.DtnTime().Time().Add(
		time.Duration(b.PrimaryBlock.Lifetime) * time.Millisecond)
}
