// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/peer"
	"github.com/dtn7/dtn7-go/pkg/routing"
)

// SubmitBundle builds and injects a new Bundle addressed to destination, as the client API's submit_bundle handler
// (§6). lifetimeMs is the Bundle's lifetime in milliseconds.
func (c *Core) SubmitBundle(destination bpv7.EndpointID, payload []byte, lifetimeMs uint64) error {
	b, err := bpv7.Builder().
		CRC(bpv7.CRC32).
		Source(c.NodeId).
		Destination(destination).
		CreationTimestampNow().
		Lifetime(lifetimeMs).
		BundleCtrlFlags(bpv7.MustNotFragmented).
		HopCountBlock(64).
		PayloadBlock(payload).
		Build()
	if err != nil {
		return fmt.Errorf("building bundle for %v: %w", destination, err)
	}

	return c.forwarder.Submit(b)
}

// ListenBundles subscribes to every Bundle addressed to endpoint, as the client API's listen_bundles handler (§6).
// Bundles already retained in the Bundle Store for endpoint reach the returned Subscription through the Forwarder
// scan this call triggers. A bundle arriving while that scan is still pending may be received before them, so the
// stored backlog is not guaranteed to come first. Both flow through the same Subscription.Receive call.
func (c *Core) ListenBundles(endpoint bpv7.EndpointID) (*Subscription, error) {
	sub := newSubscription(endpoint, c.registry)
	c.registry.Subscribe(endpoint, sub)

	if backlog := c.store.QueryDestined(endpoint); len(backlog) > 0 {
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"backlog":  len(backlog),
		}).Debug("New subscriber has undelivered bundles waiting in the store")
	}

	// Re-drive the Forwarder's scan so any already-stored bundle for endpoint is handed to this new subscriber
	// through the ordinary deliverLocally path, rather than this handler duplicating that delivery logic.
	c.forwarder.WakeSubscribers()

	return sub, nil
}

// NodeView describes a configured peer for the client API's list_nodes handler.
type NodeView struct {
	Address string
	NodeId  bpv7.EndpointID
	Status  peer.Status
}

// ListNodes returns every currently configured peer, as the client API's list_nodes handler (§6).
func (c *Core) ListNodes() []NodeView {
	ps := c.peers.Peers()
	out := make([]NodeView, len(ps))
	for i, p := range ps {
		out[i] = NodeView{Address: p.Address(), NodeId: p.NodeId(), Status: p.CurrentStatus()}
	}
	return out
}

// AddNode configures a new peer to dial at address, as the client API's add_node handler (§6).
func (c *Core) AddNode(address string) {
	c.peers.AddPeer(address)
}

// RemoveNode tears down and forgets a configured peer, as the client API's remove_node handler (§6). It reports
// whether a peer was found for address.
func (c *Core) RemoveNode(address string) bool {
	return c.peers.RemovePeer(address)
}

// ListRoutes returns a snapshot of the Routing Table, as the client API's list_routes handler (§6).
func (c *Core) ListRoutes() []routing.RouteView {
	return c.table.ListRoutes()
}

// AddRoute inserts or replaces an operator-supplied route from target to nextHop, as the client API's add_route
// handler (§6).
func (c *Core) AddRoute(target, nextHop bpv7.EndpointID, preferred bool) {
	c.table.AddStaticRoute(target, nextHop, preferred)
}

// RemoveRoute deletes an operator-supplied route, as the client API's remove_route handler (§6).
func (c *Core) RemoveRoute(target, nextHop bpv7.EndpointID) {
	c.table.RemoveStaticRoute(target, nextHop)
}
