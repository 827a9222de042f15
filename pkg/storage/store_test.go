// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

func mustBundle(t *testing.T, lifetime string) bpv7.Bundle {
	t.Helper()
	return mustBundleFrom(t, "dtn://src/", lifetime)
}

func mustBundleFrom(t *testing.T, source, lifetime string) bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source(source).
		Destination("dtn://dest/").
		CreationTimestampNow().
		Lifetime(lifetime).
		PayloadBlock([]byte("hello world")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStoreInsertAndGet(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "10m")

	store.Insert(b)

	rec, ok := store.Get(b.ID())
	if !ok {
		t.Fatal("expected record to be found")
	}
	if rec.State != Accepted {
		t.Fatalf("expected Accepted, got %v", rec.State)
	}
}

func TestStoreInsertIsIdempotent(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "10m")

	first := store.Insert(b)
	store.MarkForwarded(b.ID(), bpv7.MustNewEndpointID("dtn://peerone/"))

	second := store.Insert(b)
	if len(second.ForwardedTo) != 1 {
		t.Fatalf("expected the re-insert to merge ForwardedTo, got %d entries", len(second.ForwardedTo))
	}
	if first.Id != second.Id {
		t.Fatalf("expected same record id across inserts")
	}
}

func TestStoreInsertKeepsEarlierExpiry(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "10m")

	store.Insert(b)

	rec, _ := store.Get(b.ID())
	earlier := rec.Expires.Add(-time.Minute)
	store.ScheduleRetry(b.ID(), 0, time.Time{})

	// Directly simulate a duplicate insert racing in with a tighter expiry: the same BID with one minute less
	// lifetime. Insert has to keep that earlier Expires.
	tighter := b
	tighter.PrimaryBlock.Lifetime -= uint64(time.Minute / time.Millisecond)
	store.Insert(tighter)
	again, _ := store.Get(b.ID())
	if !again.Expires.Equal(earlier) {
		t.Fatalf("expected the earlier Expires %v to be kept on re-insert, got %v", earlier, again.Expires)
	}
}

func TestStoreMarkForwardedClearsRetry(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "10m")
	store.Insert(b)

	store.ScheduleRetry(b.ID(), 3, time.Now().Add(time.Minute))
	store.MarkForwarded(b.ID(), bpv7.MustNewEndpointID("dtn://peerone/"))

	rec, _ := store.Get(b.ID())
	if !rec.NextRetry.IsZero() {
		t.Fatalf("expected NextRetry cleared, got %v", rec.NextRetry)
	}
}

func TestStoreIterPending(t *testing.T) {
	store := NewStore()
	b1 := mustBundleFrom(t, "dtn://src1/", "10m")
	store.Insert(b1)

	b2 := mustBundleFrom(t, "dtn://src2/", "10m")
	store.Insert(b2)
	store.ScheduleRetry(b2.ID(), 1, time.Now().Add(time.Hour))

	pending := store.IterPending(time.Now())
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending record (the other's retry is in the future), got %d", len(pending))
	}
	if pending[0].Id != newRecord(b1).Id {
		t.Fatalf("expected the immediately-due record to be b1")
	}
}

func TestStoreExpireDue(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "1ms")
	store.Insert(b)

	time.Sleep(5 * time.Millisecond)

	expired := store.ExpireDue(time.Now())
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired bundle, got %d", len(expired))
	}

	rec, ok := store.Get(b.ID())
	if !ok {
		t.Fatal("expected record to still be present, now Expired")
	}
	if rec.State != Expired {
		t.Fatalf("expected Expired, got %v", rec.State)
	}

	if pending := store.IterPending(time.Now()); len(pending) != 0 {
		t.Fatalf("expected an Expired record to no longer be pending, got %d", len(pending))
	}
}

func TestStoreDeleteAndKnowsBundle(t *testing.T) {
	store := NewStore()
	b := mustBundle(t, "10m")
	store.Insert(b)

	if !store.KnowsBundle(b.ID()) {
		t.Fatal("expected KnowsBundle to report true")
	}

	store.Delete(b.ID())

	if store.KnowsBundle(b.ID()) {
		t.Fatal("expected KnowsBundle to report false after Delete")
	}
}

func TestStoreQueryDestined(t *testing.T) {
	store := NewStore()

	matching := mustBundleFrom(t, "dtn://src-a/", "10m")
	store.Insert(matching)

	other, err := bpv7.Builder().
		Source("dtn://src-b/").
		Destination("dtn://elsewhere/").
		CreationTimestampNow().
		Lifetime("10m").
		PayloadBlock([]byte("hello world")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	store.Insert(other)

	recs := store.QueryDestined(bpv7.MustNewEndpointID("dtn://dest/"))
	if len(recs) != 1 {
		t.Fatalf("expected exactly one matching record, got %d", len(recs))
	}
	if recs[0].Id != matching.ID().String() {
		t.Fatalf("unexpected record returned: %s", recs[0].Id)
	}
}

func TestStoreShardDistribution(t *testing.T) {
	store := NewStoreShards(4)

	for i := 0; i < 20; i++ {
		b, err := bpv7.Builder().
			Source(fmt.Sprintf("dtn://src%d/", i)).
			Destination("dtn://dest/").
			CreationTimestampEpoch().
			Lifetime("10m").
			BundleCtrlFlags(bpv7.MustNotFragmented).
			PayloadBlock([]byte("hello world")).
			Build()
		if err != nil {
			t.Fatal(err)
		}
		store.Insert(b)
	}

	total := 0
	for _, shd := range store.shards {
		total += len(shd.records)
	}
	if total != 20 {
		t.Fatalf("expected 20 total records across shards, got %d", total)
	}
}
