// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sort"
	"strings"
	"sync"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

// RouteKind distinguishes how a Route came to exist.
type RouteKind int

const (
	// Connected routes are synthesised automatically from an Established peer; target equals the peer's node ID.
	Connected RouteKind = iota

	// Static routes are supplied by an operator through the client API's add_route and persist independently of
	// peer state; their link is resolved dynamically from whichever Connected route currently exists for the same
	// next hop, since a Static route only names a next-hop node ID, not a specific link.
	Static
)

func (k RouteKind) String() string {
	if k == Connected {
		return "Connected"
	}
	return "Static"
}

// Route is a single entry in the Table: a next hop reachable for any destination EID whose authority and path fall
// under Target, as a prefix at a path-segment boundary.
type Route struct {
	// Target is the EID prefix this Route applies to.
	Target bpv7.EndpointID

	// NextHop is the node ID of the peer this Route forwards through.
	NextHop bpv7.EndpointID

	Kind RouteKind

	// Preferred routes are chosen over non-preferred ones among otherwise equal candidates, per invariant 5.
	Preferred bool
}

// Lookup is the result of a successful Table.Lookup: a next hop plus the link used to reach it.
type Lookup struct {
	NextHop       bpv7.EndpointID
	Sender        cla.ConvergenceSender
	MaxBundleSize uint64
}

// Table is the routing table described by the Routing Table component: a prefix-matched map from destination EID to
// next hop, implementing invariant 5's deterministic tie-break.
//
// Per the concurrency model, the Table is read-mostly: admin mutations (AddStaticRoute/RemoveStaticRoute) and peer
// state changes (AddRoute/RemoveRoute, called by the Peer Manager as routes come up and go down) serialise through
// mutex, while Lookup only takes a read lock for the duration of a single scan. This uses sync.RWMutex directly
// rather than an atomic-snapshot/copy-on-write scheme: no library anywhere in the retrieved corpus implements an
// RCU-style map, and a single RWMutex already gives readers a consistent snapshot for the microsecond-scale hold
// time a route scan takes.
type Table struct {
	mutex  sync.RWMutex
	routes []Route

	// senders holds the currently Established link for each peer node ID with a Connected route; a Static route's
	// availability and link are both resolved through this map at Lookup time, since a Static route only names a
	// next-hop node ID rather than owning a link itself.
	senders map[bpv7.EndpointID]cla.ConvergenceSender

	// onChange, if set via OnChange, is called after every mutation — the Forwarder's wake signal for route/peer
	// state changes described by §4.6.
	onChange func()
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		senders: make(map[bpv7.EndpointID]cla.ConvergenceSender),
	}
}

// OnChange registers f to be called, without the Table's lock held, after every route mutation. The Forwarder uses
// this to wire Forwarder.WakeRoutes as its route/peer state change wake signal. Only one callback is kept; a later
// call replaces an earlier one.
func (t *Table) OnChange(f func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.onChange = f
}

func (t *Table) notifyChange() {
	t.mutex.RLock()
	f := t.onChange
	t.mutex.RUnlock()

	if f != nil {
		f()
	}
}

// AddRoute publishes peerNodeId as reachable via sender, synthesising a Connected route with target = peerNodeId.
// This satisfies peer.RouteTable and is called by the Peer Manager as a peer becomes Established.
func (t *Table) AddRoute(peerNodeId bpv7.EndpointID, sender cla.ConvergenceSender) {
	defer t.notifyChange()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.senders[peerNodeId] = sender

	for _, r := range t.routes {
		if r.Target == peerNodeId && r.NextHop == peerNodeId && r.Kind == Connected {
			return
		}
	}
	t.routes = append(t.routes, Route{Target: peerNodeId, NextHop: peerNodeId, Kind: Connected})
}

// RemoveRoute withdraws the Connected route for a peer that is no longer Established. This satisfies
// peer.RouteTable and is called by the Peer Manager as a peer's link disappears.
func (t *Table) RemoveRoute(peerNodeId bpv7.EndpointID, _ cla.ConvergenceSender) {
	defer t.notifyChange()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.senders, peerNodeId)

	for i, r := range t.routes {
		if r.Target == peerNodeId && r.NextHop == peerNodeId && r.Kind == Connected {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return
		}
	}
}

// AddStaticRoute inserts or replaces an operator-supplied route, as the client API's add_route handler. A second
// call for the same (target, nextHop) pair replaces the prior entry's Preferred flag.
func (t *Table) AddStaticRoute(target, nextHop bpv7.EndpointID, preferred bool) {
	defer t.notifyChange()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	for i, r := range t.routes {
		if r.Target == target && r.NextHop == nextHop && r.Kind == Static {
			t.routes[i].Preferred = preferred
			return
		}
	}
	t.routes = append(t.routes, Route{Target: target, NextHop: nextHop, Kind: Static, Preferred: preferred})
}

// RemoveStaticRoute deletes an operator-supplied route, as the client API's remove_route handler.
func (t *Table) RemoveStaticRoute(target, nextHop bpv7.EndpointID) {
	defer t.notifyChange()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	for i, r := range t.routes {
		if r.Target == target && r.NextHop == nextHop && r.Kind == Static {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return
		}
	}
}

// RouteView is a Route as reported by ListRoutes, with its current availability and agreed bundle size limit
// resolved against the Table's live set of Established links.
type RouteView struct {
	Route

	Available     bool
	MaxBundleSize uint64
}

// ListRoutes returns a snapshot of all routes currently in the Table, for the client API's list_routes handler.
func (t *Table) ListRoutes() []RouteView {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out := make([]RouteView, len(t.routes))
	for i, r := range t.routes {
		out[i] = RouteView{Route: r}

		sender, available := t.senders[r.NextHop]
		out[i].Available = available
		if sized, ok := sender.(interface{ PeerTransferMru() uint64 }); ok {
			out[i].MaxBundleSize = sized.PeerTransferMru()
		}
	}
	return out
}

// Lookup implements the Routing Table's lookup(destination) → next hop + link handle, per §4.4:
//
//  1. Collect every Route whose Target is a prefix of destination at a path-segment boundary.
//  2. Drop routes whose next hop has no currently Established link.
//  3. Apply invariant 5's tie-break: prefer Preferred, then Connected over Static, then the lexicographically
//     smallest NextHop node ID.
func (t *Table) Lookup(destination bpv7.EndpointID) (Lookup, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var candidates []Route
	for _, r := range t.routes {
		if _, available := t.senders[r.NextHop]; available && isPrefixOf(r.Target, destination) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Lookup{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if a.Preferred != b.Preferred {
			return a.Preferred
		}
		if (a.Kind == Connected) != (b.Kind == Connected) {
			return a.Kind == Connected
		}
		return strings.Compare(a.NextHop.String(), b.NextHop.String()) < 0
	})

	best := candidates[0]
	sender := t.senders[best.NextHop]

	// The agreed transfer MRU is a capability of the underlying link, not every cla.ConvergenceSender; TCPCLv4's
	// Client exposes it via PeerTransferMru, asserted for here rather than widening the cla.ConvergenceSender
	// interface for the sake of a single CLA implementation.
	var mbs uint64
	if sized, ok := sender.(interface{ PeerTransferMru() uint64 }); ok {
		mbs = sized.PeerTransferMru()
	}

	return Lookup{
		NextHop:       best.NextHop,
		Sender:        sender,
		MaxBundleSize: mbs,
	}, true
}

// isPrefixOf reports whether target is a prefix of destination at a path-segment boundary: they must share scheme
// and authority, and target's path must either equal destination's path or be followed by a "/" within it.
func isPrefixOf(target, destination bpv7.EndpointID) bool {
	if !target.SameNode(destination) {
		return false
	}

	targetPath, destPath := target.Path(), destination.Path()
	if targetPath == destPath || targetPath == "" || targetPath == "/" {
		return true
	}
	if !strings.HasPrefix(destPath, targetPath) {
		return false
	}

	rest := destPath[len(targetPath):]
	return strings.HasPrefix(rest, "/")
}
