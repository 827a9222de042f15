// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"testing"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

// mockSender is a minimal cla.ConvergenceSender test double, additionally exposing PeerTransferMru so Lookup's
// MaxBundleSize resolution can be exercised.
type mockSender struct {
	peerId bpv7.EndpointID
	mru    uint64
}

func (m *mockSender) Start() (error, bool)            { return nil, true }
func (m *mockSender) Close() error                     { return nil }
func (m *mockSender) Address() string                  { return m.peerId.String() }
func (m *mockSender) IsPermanent() bool                { return false }
func (m *mockSender) Channel() chan cla.ConvergenceStatus { return nil }
func (m *mockSender) Send(_ bpv7.Bundle) error         { return nil }
func (m *mockSender) GetPeerEndpointID() bpv7.EndpointID { return m.peerId }
func (m *mockSender) PeerTransferMru() uint64          { return m.mru }

func TestTableConnectedRouteLookup(t *testing.T) {
	nodeA := bpv7.MustNewEndpointID("dtn://a/")

	table := NewTable()
	sender := &mockSender{peerId: nodeA, mru: 4096}

	table.AddRoute(nodeA, sender)

	lookup, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://a/inbox"))
	if !ok {
		t.Fatal("expected a route")
	}
	if lookup.NextHop != nodeA {
		t.Errorf("expected next hop %v, got %v", nodeA, lookup.NextHop)
	}
	if lookup.MaxBundleSize != 4096 {
		t.Errorf("expected MaxBundleSize 4096, got %d", lookup.MaxBundleSize)
	}

	table.RemoveRoute(nodeA, sender)
	if _, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://a/inbox")); ok {
		t.Fatal("expected no route after RemoveRoute")
	}
}

func TestTablePrefixMatchAtSegmentBoundary(t *testing.T) {
	nodeA := bpv7.MustNewEndpointID("dtn://a/")

	table := NewTable()
	table.AddRoute(nodeA, &mockSender{peerId: nodeA})
	table.AddStaticRoute(bpv7.MustNewEndpointID("dtn://a/news"), nodeA, false)

	// "dtn://a/newsletter" shares the "dtn://a/news" string prefix, but not at a path-segment boundary.
	if _, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://a/newsletter")); !ok {
		t.Fatal("expected the broader dtn://a/ route to still match")
	} else {
		lookup, _ := table.Lookup(bpv7.MustNewEndpointID("dtn://a/newsletter"))
		if lookup.NextHop != nodeA {
			t.Errorf("expected next hop %v, got %v", nodeA, lookup.NextHop)
		}
	}

	lookup, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://a/news/today"))
	if !ok {
		t.Fatal("expected a route for dtn://a/news/today")
	}
	if lookup.NextHop != nodeA {
		t.Errorf("expected next hop %v, got %v", nodeA, lookup.NextHop)
	}

	if _, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://b/")); ok {
		t.Fatal("expected no route across a differing authority")
	}
}

func TestTableLookupDropsUnestablishedNextHop(t *testing.T) {
	nodeA := bpv7.MustNewEndpointID("dtn://a/")

	table := NewTable()
	// A Static route naming a next hop with no Connected route is never available.
	table.AddStaticRoute(bpv7.MustNewEndpointID("dtn://anything/"), nodeA, false)

	if _, ok := table.Lookup(bpv7.MustNewEndpointID("dtn://anything/")); ok {
		t.Fatal("expected no route: next hop has no Established link")
	}
}

func TestTableTieBreakInvariant5(t *testing.T) {
	dest := bpv7.MustNewEndpointID("dtn://dest/")

	nodeLow := bpv7.MustNewEndpointID("dtn://aaa/")
	nodeHigh := bpv7.MustNewEndpointID("dtn://zzz/")

	table := NewTable()
	table.AddRoute(nodeLow, &mockSender{peerId: nodeLow})
	table.AddRoute(nodeHigh, &mockSender{peerId: nodeHigh})
	table.AddStaticRoute(dest, nodeLow, false)
	table.AddStaticRoute(dest, nodeHigh, false)

	// Among two equally-ranked Static routes, the lexicographically smallest next hop wins.
	lookup, ok := table.Lookup(dest)
	if !ok {
		t.Fatal("expected a route")
	}
	if lookup.NextHop != nodeLow {
		t.Errorf("expected next hop %v, got %v", nodeLow, lookup.NextHop)
	}

	// Marking the higher next hop's route Preferred overrides the lexicographic tie-break.
	table.AddStaticRoute(dest, nodeHigh, true)
	lookup, ok = table.Lookup(dest)
	if !ok {
		t.Fatal("expected a route")
	}
	if lookup.NextHop != nodeHigh {
		t.Errorf("expected Preferred next hop %v, got %v", nodeHigh, lookup.NextHop)
	}
}

func TestTableConnectedBeatsStatic(t *testing.T) {
	dest := bpv7.MustNewEndpointID("dtn://dest/")

	// dest ("dtn://dest/") sorts lexicographically after nodeStat ("dtn://aaa/"), so without the Connected-over-Static
	// tie-break the Static route's next hop would win on the lexicographic rule alone.
	nodeStat := bpv7.MustNewEndpointID("dtn://aaa/")
	nodeConn := bpv7.MustNewEndpointID("dtn://zzz/")

	table := NewTable()
	table.AddRoute(nodeStat, &mockSender{peerId: nodeStat})
	table.AddRoute(nodeConn, &mockSender{peerId: nodeConn})
	table.AddStaticRoute(dest, nodeStat, false)
	// dest itself becomes reachable as a Connected route once a peer with node ID dest is Established; nodeConn's
	// Connected route only targets dtn://zzz/ and is no candidate for dest.
	table.AddRoute(dest, &mockSender{peerId: dest})

	lookup, ok := table.Lookup(dest)
	if !ok {
		t.Fatal("expected a route")
	}
	if lookup.NextHop != dest {
		t.Errorf("expected Connected next hop %v, got %v", dest, lookup.NextHop)
	}
}

func TestTableListRoutes(t *testing.T) {
	nodeA := bpv7.MustNewEndpointID("dtn://a/")

	table := NewTable()
	table.AddRoute(nodeA, &mockSender{peerId: nodeA, mru: 2048})
	table.AddStaticRoute(bpv7.MustNewEndpointID("dtn://b/"), nodeA, true)

	views := table.ListRoutes()
	if len(views) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(views))
	}

	for _, v := range views {
		if !v.Available {
			t.Errorf("expected route to %v to be available", v.Target)
		}
	}
}

func TestTableRemoveStaticRoute(t *testing.T) {
	nodeA := bpv7.MustNewEndpointID("dtn://a/")
	target := bpv7.MustNewEndpointID("dtn://b/")

	table := NewTable()
	table.AddRoute(nodeA, &mockSender{peerId: nodeA})
	table.AddStaticRoute(target, nodeA, false)

	table.RemoveStaticRoute(target, nodeA)

	if _, ok := table.Lookup(target); ok {
		t.Fatal("expected no route after RemoveStaticRoute")
	}
	if n := len(table.ListRoutes()); n != 1 {
		t.Fatalf("expected 1 remaining route, got %d", n)
	}
}
