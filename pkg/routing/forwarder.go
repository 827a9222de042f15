// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"bytes"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/storage"
)

// scanInterval is the Forwarder's periodic sweep for bundles whose retry delay has elapsed, per §4.6.
const scanInterval = time.Second

// Forwarder is the single cooperative task described by the Forwarder component: it owns every bundle's
// progression through the store, driven by three event sources funnelled into one select loop — bundle arrivals,
// a 1s retry/expiry scan, and a wake signal for route or peer state changes. It replaces the teacher's
// constraint-bag Core/Pipeline (dispatching/forward/localDelivery across pkg/routing/processing.go and
// pipeline*.go), keeping that file's control flow — local-delivery-vs-lookup-vs-fragment-vs-forward, hop
// accounting, status handling — but re-targeted at storage.Store's simpler Accepted→Forwarding→{Delivered,
// Expired, Failed} state model instead of the teacher's constraint set.
type Forwarder struct {
	localNode bpv7.EndpointID

	store    *storage.Store
	table    *Table
	registry *Registry

	reassembly *reassemblyTracker

	arrivals chan bpv7.Bundle
	wake     chan struct{}

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewForwarder creates a Forwarder for localNode and starts its background task. store, table and registry must
// outlive the Forwarder.
func NewForwarder(localNode bpv7.EndpointID, store *storage.Store, table *Table, registry *Registry) *Forwarder {
	f := &Forwarder{
		localNode: localNode,

		store:    store,
		table:    table,
		registry: registry,

		reassembly: newReassemblyTracker(),

		arrivals: make(chan bpv7.Bundle, 64),
		wake:     make(chan struct{}, 1),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	table.OnChange(f.WakeRoutes)

	go f.run()

	return f
}

// Close stops the Forwarder's background task. Bundles already in the store are left as they are; nothing is
// drained or flushed, matching the Bundle store's own lack of on-disk persistence.
func (f *Forwarder) Close() error {
	close(f.stopSyn)
	<-f.stopAck

	return nil
}

// Submit accepts a locally originated bundle for dispatch, as the client API's submit_bundle handler. It rejects a
// zero lifetime outright, per §7's "submit_bundle returns error only on malformed input or lifetime == 0".
func (f *Forwarder) Submit(b bpv7.Bundle) error {
	if b.PrimaryBlock.Lifetime == 0 {
		return fmt.Errorf("routing: bundle lifetime must be greater than zero")
	}

	f.store.Insert(b)
	f.enqueue(b)

	return nil
}

// Receive accepts a bundle arriving over a Link. A fragment is buffered until its siblings complete it; a bundle
// already known to the store (a duplicate arrival) is dropped without disturbing its existing record.
func (f *Forwarder) Receive(b bpv7.Bundle) {
	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.IsFragment) {
		fragments, complete := f.reassembly.add(b)
		if !complete {
			return
		}

		reassembled, err := bpv7.ReassembleFragments(fragments)
		if err != nil {
			log.WithError(err).Warn("Failed to reassemble bundle fragments")
			return
		}
		b = reassembled
	}

	if f.store.KnowsBundle(b.ID()) {
		log.WithField("bundle", b.ID().String()).Debug("Received bundle is already known, dropping duplicate")
		return
	}

	f.store.Insert(b)
	f.enqueue(b)
}

func (f *Forwarder) enqueue(b bpv7.Bundle) {
	select {
	case f.arrivals <- b:
	case <-f.stopSyn:
	}
}

// WakeRoutes signals the Forwarder that route or peer state has changed, so bundles currently waiting on a route
// are reconsidered without waiting for the next scan tick.
func (f *Forwarder) WakeRoutes() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// WakeSubscribers signals the Forwarder to immediately reconsider every stored Record, so a listen_bundles endpoint
// that just subscribed receives any already-stored bundle destined for it through the same deliverLocally path a
// freshly-arrived bundle takes, instead of the client API needing its own delivery logic.
func (f *Forwarder) WakeSubscribers() {
	f.WakeRoutes()
}

func (f *Forwarder) run() {
	defer close(f.stopAck)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopSyn:
			return

		case b := <-f.arrivals:
			f.processBundle(b)

		case <-ticker.C:
			f.scan()

		case <-f.wake:
			f.scan()
		}
	}
}

// scan expires overdue bundles and re-drives every pending record whose retry delay has elapsed.
func (f *Forwarder) scan() {
	now := time.Now()

	f.reassembly.expireDue(now)

	for _, bid := range f.store.ExpireDue(now) {
		log.WithField("bundle", bid.String()).Info("Bundle lifetime expired, discarding")
		f.store.Delete(bid)
	}

	for _, rec := range f.store.IterPending(now) {
		f.processRecord(rec)
	}
}

func (f *Forwarder) processBundle(b bpv7.Bundle) {
	rec, ok := f.store.Get(b.ID())
	if !ok {
		rec = f.store.Insert(b)
	}
	f.processRecord(rec)
}

// processRecord is the Forwarder's per-bundle decision per §4.6: local delivery, route lookup, fragmentation, or
// handoff to a link, in that order.
func (f *Forwarder) processRecord(rec storage.Record) {
	if time.Now().After(rec.Expires) {
		log.WithField("bundle", rec.BId.String()).Info("Bundle lifetime expired, discarding")
		f.store.UpdateState(rec.BId, storage.Expired)
		f.store.Delete(rec.BId)
		return
	}

	dest := rec.Bundle.PrimaryBlock.Destination

	if dest.SameNode(f.localNode) {
		f.deliverLocally(rec)
		return
	}

	lookup, found := f.table.Lookup(dest)
	if !found {
		f.scheduleRetry(rec, "no route to destination")
		return
	}

	if _, already := rec.ForwardedTo[lookup.NextHop]; already {
		// This next hop already has the bundle; no further hop is modeled in this core (see DESIGN.md), so the
		// record simply stays Forwarding until it expires.
		return
	}

	f.forwardVia(rec, lookup)
}

// deliverLocally hands a bundle addressed to this node to the Endpoint registry. If nobody is currently
// subscribed, the bundle is retained Accepted in the store for store-and-forward delivery up to its lifetime.
func (f *Forwarder) deliverLocally(rec storage.Record) {
	if f.registry.Deliver(rec.Bundle) {
		f.store.UpdateState(rec.BId, storage.Delivered)
		f.store.Delete(rec.BId)
		return
	}

	log.WithField("bundle", rec.BId.String()).Debug("No subscriber registered, retaining bundle")
}

// forwardVia either fragments an oversize bundle and re-enters each fragment as its own bundle, or hands the
// bundle directly to the selected link.
func (f *Forwarder) forwardVia(rec storage.Record, lookup Lookup) {
	f.store.UpdateState(rec.BId, storage.Forwarding)

	size, err := encodedSize(rec.Bundle)
	if err != nil {
		log.WithField("bundle", rec.BId.String()).WithError(err).Warn("Failed to measure bundle, discarding")
		f.store.UpdateState(rec.BId, storage.Failed)
		f.store.Delete(rec.BId)
		return
	}

	if lookup.MaxBundleSize == 0 {
		// A transfer MRU of zero means the peer has advertised it cannot accept any transfer at all, per §8;
		// unlike a genuine oversize bundle this is not fixable by fragmenting, so back off like a missing route.
		f.scheduleRetry(rec, "next hop advertised zero transfer MRU")
		return
	}

	if uint64(size) > lookup.MaxBundleSize {
		f.fragmentAndReenter(rec, lookup)
		return
	}

	f.send(rec, lookup)
}

func (f *Forwarder) fragmentAndReenter(rec storage.Record, lookup Lookup) {
	fragments, err := rec.Bundle.Fragment(int(lookup.MaxBundleSize))
	if err != nil {
		log.WithField("bundle", rec.BId.String()).WithError(err).Warn("Bundle cannot be fragmented to fit next hop")
		f.store.UpdateState(rec.BId, storage.Failed)
		f.store.Delete(rec.BId)
		return
	}

	log.WithFields(log.Fields{
		"bundle":    rec.BId.String(),
		"fragments": len(fragments),
	}).Info("Bundle exceeds next hop's transfer MRU, fragmenting")

	f.store.Delete(rec.BId)
	for _, frag := range fragments {
		f.processBundle(frag)
	}
}

// send hands a bundle to the selected link's ConvergenceSender. Send blocks until the transfer completes (or
// fails), which this core treats as equivalent to a final XFER_ACK: the ConvergenceSender interface does not
// surface XFER_REFUSE's distinct reasons (Completed/Retransmit/NoResources/...) to callers above the CLA layer,
// same as the teacher's own forward(); every failure is therefore handled uniformly as transient, per §7.
func (f *Forwarder) send(rec storage.Record, lookup Lookup) {
	if err := lookup.Sender.Send(rec.Bundle); err != nil {
		log.WithFields(log.Fields{
			"bundle":   rec.BId.String(),
			"next_hop": lookup.NextHop,
			"error":    err,
		}).Info("Forwarding attempt failed")

		f.scheduleRetry(rec, "transfer failed")
		return
	}

	log.WithFields(log.Fields{
		"bundle":   rec.BId.String(),
		"next_hop": lookup.NextHop,
	}).Info("Bundle forwarded")

	f.store.MarkForwarded(rec.BId, lookup.NextHop)

	if lookup.NextHop.SameNode(rec.Bundle.PrimaryBlock.Destination) {
		f.store.UpdateState(rec.BId, storage.Delivered)
		f.store.Delete(rec.BId)
	}

	// Else: the record stays Forwarding. Multi-hop forwarding past the first next hop is an open question this core does not
	// implement (see DESIGN.md / spec §9), so the record simply stays in the store until it expires.
}

func (f *Forwarder) scheduleRetry(rec storage.Record, reason string) {
	attempts := rec.Attempts + 1
	delay := nextBackoff(attempts)

	log.WithFields(log.Fields{
		"bundle":   rec.BId.String(),
		"attempts": attempts,
		"delay":    delay,
		"reason":   reason,
	}).Debug("Scheduling retry")

	f.store.ScheduleRetry(rec.BId, attempts, time.Now().Add(delay))
}

// encodedSize returns a bundle's CBOR-encoded length, for comparison against a link's agreed transfer MRU.
func encodedSize(b bpv7.Bundle) (int, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteBundle(buf); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
