// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage implements the bundle store: an in-memory, addressable collection of pending bundles together
// with their forwarding state, partitioned across shards for concurrent access.
package storage

import (
	"hash/fnv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// defaultShardCount is N in "partitioned by a hash of BID across N shards (default 16)".
const defaultShardCount = 16

// Store is the bundle store: an in-memory map from BID to Record, sharded for concurrent access. Unlike the
// teacher's badgerhold-backed Store, nothing here touches disk; on-disk persistence of the bundle store across
// restarts is explicitly out of scope.
type Store struct {
	shards []*shard
}

// NewStore creates an empty Store with the default number of shards.
func NewStore() *Store {
	return NewStoreShards(defaultShardCount)
}

// NewStoreShards creates an empty Store with an explicit shard count, mostly for tests.
func NewStoreShards(shardCount int) *Store {
	if shardCount < 1 {
		shardCount = 1
	}

	s := &Store{shards: make([]*shard, shardCount)}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

// Close releases the Store. It exists for symmetry with the other long-lived components this daemon shuts down
// together (cla.Manager.Close, peer.Manager.Close); there is nothing to release in an in-memory store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Insert adds a Bundle to the Store, or merges it into an existing Record sharing the same BID. Insert is
// idempotent: inserting a BID already present merges the two ForwardedTo sets and keeps the earlier Expires.
func (s *Store) Insert(b bpv7.Bundle) Record {
	rec := newRecord(b)
	shd := s.shardFor(rec.Id)

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	if existing, ok := shd.records[rec.Id]; ok {
		for peer := range rec.ForwardedTo {
			existing.ForwardedTo[peer] = struct{}{}
		}
		if rec.Expires.Before(existing.Expires) {
			existing.Expires = rec.Expires
		}
		shd.records[rec.Id] = existing

		log.WithField("bundle", rec.Id).Debug("Bundle already known, merged into existing record")
		return existing
	}

	shd.records[rec.Id] = rec
	log.WithField("bundle", rec.Id).Debug("Inserted new bundle record")
	return rec
}

// Get fetches the Record for a BundleID.
func (s *Store) Get(bid bpv7.BundleID) (Record, bool) {
	shd := s.shardFor(bid.String())

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	rec, ok := shd.records[bid.String()]
	return rec, ok
}

// UpdateState advances a Record's State. Transitions into a terminal State are not reversed by a later call; the
// Forwarder is expected to respect invariant 2's monotonic progression on its own, this only guards the store's own
// bookkeeping against clobbering an already-terminal Record.
func (s *Store) UpdateState(bid bpv7.BundleID, state State) {
	id := bid.String()
	shd := s.shardFor(id)

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	rec, ok := shd.records[id]
	if !ok || rec.State.Terminal() {
		return
	}

	rec.State = state
	shd.records[id] = rec
}

// MarkForwarded records that peer has acknowledged custody or full transfer of a bundle, and clears any pending
// retry delay so the next scan reconsiders it immediately for any further hop.
func (s *Store) MarkForwarded(bid bpv7.BundleID, peer bpv7.EndpointID) {
	id := bid.String()
	shd := s.shardFor(id)

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	rec, ok := shd.records[id]
	if !ok {
		return
	}

	rec.ForwardedTo[peer] = struct{}{}
	rec.NextRetry = time.Time{}
	shd.records[id] = rec
}

// ScheduleRetry sets a Record's attempt count and next earliest retry time, as computed by the Forwarder's backoff.
func (s *Store) ScheduleRetry(bid bpv7.BundleID, attempts int, nextRetry time.Time) {
	id := bid.String()
	shd := s.shardFor(id)

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	rec, ok := shd.records[id]
	if !ok {
		return
	}

	rec.Attempts = attempts
	rec.NextRetry = nextRetry
	shd.records[id] = rec
}

// Delete removes a Record outright, once it has reached a terminal State and the Forwarder no longer needs it.
func (s *Store) Delete(bid bpv7.BundleID) {
	id := bid.String()
	shd := s.shardFor(id)

	shd.mutex.Lock()
	defer shd.mutex.Unlock()

	delete(shd.records, id)
}

// KnowsBundle reports whether a BID is already present in the Store.
func (s *Store) KnowsBundle(bid bpv7.BundleID) bool {
	_, ok := s.Get(bid)
	return ok
}

// IterPending returns every non-terminal Record whose NextRetry has elapsed as of now, for the Forwarder's 1s scan.
func (s *Store) IterPending(now time.Time) []Record {
	var pending []Record

	for _, shd := range s.shards {
		shd.mutex.Lock()
		for _, rec := range shd.records {
			if rec.isPending(now) {
				pending = append(pending, rec)
			}
		}
		shd.mutex.Unlock()
	}

	return pending
}

// QueryDestined returns every currently stored Record whose destination is on the same node as destination; this is
// a node-level match, not an exact endpoint match. The client API's listen_bundles handler (§6) uses it to log how
// many bundles are already waiting when a subscriber appears.
func (s *Store) QueryDestined(destination bpv7.EndpointID) []Record {
	var matches []Record

	for _, shd := range s.shards {
		shd.mutex.Lock()
		for _, rec := range shd.records {
			if rec.Bundle.PrimaryBlock.Destination.SameNode(destination) {
				matches = append(matches, rec)
			}
		}
		shd.mutex.Unlock()
	}

	return matches
}

// ExpireDue transitions every Record whose Expires has passed as of now into the Expired State and returns their
// BundleIDs.
func (s *Store) ExpireDue(now time.Time) []bpv7.BundleID {
	var expired []bpv7.BundleID

	for _, shd := range s.shards {
		shd.mutex.Lock()
		for id, rec := range shd.records {
			if !rec.State.Terminal() && now.After(rec.Expires) {
				rec.State = Expired
				shd.records[id] = rec
				expired = append(expired, rec.BId)
			}
		}
		shd.mutex.Unlock()
	}

	return expired
}
