// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

// Peer is a single configured or discovered bundle node and the lifecycle of the CLA connection to it.
//
// A Peer configured with an Address is dialed by its Manager whenever it is not already connected; its entry
// survives a failed or closed connection and is retried with a backoff. A Peer without an Address is a temporary
// entry created for an inbound connection whose node ID did not match any configured Peer; it is removed as soon
// as that connection disappears.
type Peer struct {
	mutex sync.RWMutex

	// address is the dial address for an outbound Peer, empty for a temporary inbound-only entry.
	address string

	// permanent Peers are retried forever; temporary Peers are dropped once their connection disappears.
	permanent bool

	nodeId bpv7.EndpointID

	status  Status
	attempt int

	conv cla.Convergence

	// removeSyn is closed by markRemoved, as the client API's remove_node handler, to stop a configured Peer's dial
	// loop without waiting out any in-progress backoff delay.
	removeSyn  chan struct{}
	removeOnce sync.Once
}

// newConfiguredPeer creates a Peer which the Manager will actively dial at address.
func newConfiguredPeer(address string) *Peer {
	return &Peer{
		address:   address,
		permanent: true,
		status:    StatusDialing,
		removeSyn: make(chan struct{}),
	}
}

// newTemporaryPeer creates a Peer entry wrapping an already-established inbound connection with no matching
// configured address.
func newTemporaryPeer(nodeId bpv7.EndpointID, conv cla.Convergence) *Peer {
	return &Peer{
		permanent: false,
		nodeId:    nodeId,
		status:    StatusEstablished,
		conv:      conv,
	}
}

// NodeId returns this Peer's negotiated node ID, or the zero EndpointID if no session has been established yet.
func (p *Peer) NodeId() bpv7.EndpointID {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.nodeId
}

// Address returns the dial address for an outbound Peer, or the empty string for a temporary Peer.
func (p *Peer) Address() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.address
}

// CurrentStatus returns this Peer's current connection Status.
func (p *Peer) CurrentStatus() Status {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.status
}

// IsPermanent reports whether this Peer is a configured Peer, retried across failures, rather than a temporary
// entry created for an unmatched inbound connection.
func (p *Peer) IsPermanent() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.permanent
}

// Sender returns the active ConvergenceSender for this Peer, if its status is Established and the underlying
// Convergence is a sender.
func (p *Peer) Sender() (cla.ConvergenceSender, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.status != StatusEstablished || p.conv == nil {
		return nil, false
	}

	cs, ok := p.conv.(cla.ConvergenceSender)
	return cs, ok
}

func (p *Peer) setDialing() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.status = StatusDialing
	p.conv = nil
}

func (p *Peer) setConnecting(conv cla.Convergence) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.status = StatusConnecting
	p.conv = conv
}

func (p *Peer) setEstablished(nodeId bpv7.EndpointID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.status = StatusEstablished
	p.nodeId = nodeId
	p.attempt = 0
}

// setFailed marks this Peer as Failed and returns the backoff delay before the next dial attempt, incrementing the
// attempt counter used to compute it.
func (p *Peer) setFailed() time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.status = StatusFailed
	p.conv = nil

	delay := nextBackoff(p.attempt)
	p.attempt++

	return delay
}

// markRemoved signals this Peer's dial loop to stop retrying, as the client API's remove_node handler. Safe to call
// more than once.
func (p *Peer) markRemoved() {
	p.removeOnce.Do(func() { close(p.removeSyn) })
}

// removed reports, via a channel close, that this Peer has been removed.
func (p *Peer) removed() <-chan struct{} {
	return p.removeSyn
}

// closeConnection closes this Peer's current Convergence, if any, as part of remove_node tearing down an
// established session rather than waiting for it to disappear on its own.
func (p *Peer) closeConnection() {
	p.mutex.RLock()
	conv := p.conv
	p.mutex.RUnlock()

	if conv != nil {
		_ = conv.Close()
	}
}

func (p *Peer) String() string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.address != "" {
		return fmt.Sprintf("Peer(address=%s, node=%v, status=%s)", p.address, p.nodeId, p.status)
	}
	return fmt.Sprintf("Peer(node=%v, status=%s)", p.nodeId, p.status)
}
