// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

// RouteTable is the subset of the routing table's API the Manager needs to publish and withdraw routes as peer
// links come up and go down. It is satisfied by *routing.Table; defining it here, on the consumer side, keeps this
// package free of any direct dependency on the routing package.
type RouteTable interface {
	// AddRoute publishes peerNodeId as a reachable next hop, usable via sender.
	AddRoute(peerNodeId bpv7.EndpointID, sender cla.ConvergenceSender)

	// RemoveRoute withdraws a previously published route for peerNodeId over sender.
	RemoveRoute(peerNodeId bpv7.EndpointID, sender cla.ConvergenceSender)
}
