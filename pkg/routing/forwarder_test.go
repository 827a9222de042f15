// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/storage"
)

// countingSender wraps mockSender, recording every Send and optionally failing the next N attempts, to exercise
// the Forwarder's retry/backoff path without a real link.
type countingSender struct {
	mockSender

	mutex   sync.Mutex
	sent    []bpv7.Bundle
	failFor int
}

func (c *countingSender) Send(b bpv7.Bundle) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.failFor > 0 {
		c.failFor--
		return fmt.Errorf("countingSender: simulated failure")
	}

	c.sent = append(c.sent, b)
	return nil
}

func (c *countingSender) sentCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.sent)
}

func mustBundleTo(t *testing.T, destination string) bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source("dtn://src/").
		Destination(destination).
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock([]byte("hello world")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestForwarderLocalDeliveryWithSubscriber(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	eid := bpv7.MustNewEndpointID("dtn://local/inbox")
	sub := newMockSubscriber(eid)
	registry.Subscribe(eid, sub)

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b := mustBundleTo(t, "dtn://local/inbox")
	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return len(sub.inbox()) == 1 })

	waitFor(t, time.Second, func() bool {
		_, ok := store.Get(b.ID())
		return !ok
	})
}

func TestForwarderLocalDeliveryWithoutSubscriberRetainsBundle(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b := mustBundleTo(t, "dtn://local/inbox")
	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		rec, ok := store.Get(b.ID())
		return ok && rec.State == storage.Accepted
	})
}

func TestForwarderForwardsToNextHop(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	remote := bpv7.MustNewEndpointID("dtn://remote/")

	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	sender := &countingSender{mockSender: mockSender{peerId: remote, mru: 65536}}
	table.AddRoute(remote, sender)

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b := mustBundleTo(t, "dtn://remote/inbox")
	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return sender.sentCount() == 1 })

	// The next hop is the destination's node, so the record is marked Delivered and removed from the store.
	waitFor(t, time.Second, func() bool {
		_, ok := store.Get(b.ID())
		return !ok
	})
}

func TestForwarderNoRouteSchedulesRetry(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b := mustBundleTo(t, "dtn://remote/inbox")
	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		rec, ok := store.Get(b.ID())
		return ok && rec.State == storage.Accepted && rec.Attempts > 0
	})
}

func TestForwarderSubmitRejectsZeroLifetime(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	fwd := NewForwarder(local, storage.NewStore(), NewTable(), NewRegistry())
	defer fwd.Close()

	b, err := bpv7.Builder().
		Source("dtn://src/").
		Destination("dtn://remote/inbox").
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock([]byte("x")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	// The builder itself refuses a zero lifetime, so the field is zeroed after building.
	b.PrimaryBlock.Lifetime = 0

	if err := fwd.Submit(b); err == nil {
		t.Fatal("expected an error for a zero-lifetime bundle")
	}
}

func TestForwarderFragmentsOversizeBundle(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	remote := bpv7.MustNewEndpointID("dtn://remote/")

	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	sender := &countingSender{mockSender: mockSender{peerId: remote, mru: 100}}
	table.AddRoute(remote, sender)

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b, err := bpv7.Builder().
		Source("dtn://src/").
		Destination("dtn://remote/inbox").
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock(make([]byte, 250)).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return sender.sentCount() >= 3 })
}

func TestForwarderRetriesAfterTransientFailure(t *testing.T) {
	local := bpv7.MustNewEndpointID("dtn://local/")
	remote := bpv7.MustNewEndpointID("dtn://remote/")

	store := storage.NewStore()
	table := NewTable()
	registry := NewRegistry()

	sender := &countingSender{mockSender: mockSender{peerId: remote, mru: 65536}, failFor: 1}
	table.AddRoute(remote, sender)

	fwd := NewForwarder(local, store, table, registry)
	defer fwd.Close()

	b := mustBundleTo(t, "dtn://remote/inbox")
	if err := fwd.Submit(b); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 5*time.Second, func() bool { return sender.sentCount() == 1 })
}
