// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

// DialFunc creates a fresh, not-yet-started cla.Convergence for an outbound connection attempt to address. A new
// Convergence must be created for every attempt; none of the convergence layer adapters in this module support
// restarting an already-failed instance.
type DialFunc func(address string) cla.Convergence

// Manager supervises the set of configured and discovered Peers: it dials configured Peers, retries failed dials
// with an exponential, fully-jittered backoff, publishes and withdraws routes as sessions come up and go down, and
// resolves node ID collisions between simultaneous inbound and outbound connections to the same Peer.
//
// This mirrors the role cla.Manager plays for individual CLA instances (see manager.go/manager_elem.go), one level
// up: where cla.Manager retries a single CLA address on a flat timer, Manager retries a Peer's dial with the
// backoff this protocol's Peer Manager requires, and additionally understands node ID identity rather than just
// address identity. A configured Peer's connection is started and supervised directly by its own peerLoop, reading
// straight from its Convergence's own status channel; claManager is only consulted for connections this Manager did
// not itself dial, i.e. inbound connections accepted by some registered cla.ConvergenceProvider.
type Manager struct {
	claManager  *cla.Manager
	dial        DialFunc
	routes      RouteTable
	localNodeId bpv7.EndpointID

	mutex     sync.Mutex
	byAddress map[string]*Peer
	byNodeId  map[bpv7.EndpointID]*Peer

	// inbound correlates an inbound connection's Convergence Address with the temporary or matched Peer it was
	// attributed to, so its eventual disappearance can be cleaned up.
	inbound map[string]*Peer

	// onReceivedBundle, if set via OnReceivedBundle, is called for every ReceivedBundle ConvergenceStatus seen on
	// claManager's channel. Manager is claManager.Channel()'s sole reader (a channel cannot safely be read by two
	// goroutines without racing for messages), so this is how a bundle arrival reaches the Forwarder rather than
	// the Forwarder reading the same channel itself.
	onReceivedBundle func(cla.ConvergenceReceivedBundle)

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewManager creates a Manager which dials Peers via dial, additionally watches claManager for inbound connections,
// and publishes/withdraws routes through routes. localNodeId is this node's own endpoint ID, used to break ties
// between simultaneous inbound and outbound connections to the same Peer.
func NewManager(claManager *cla.Manager, dial DialFunc, routes RouteTable, localNodeId bpv7.EndpointID) *Manager {
	manager := &Manager{
		claManager:  claManager,
		dial:        dial,
		routes:      routes,
		localNodeId: localNodeId,

		byAddress: make(map[string]*Peer),
		byNodeId:  make(map[bpv7.EndpointID]*Peer),
		inbound:   make(map[string]*Peer),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go manager.dispatchInbound()

	return manager
}

// OnReceivedBundle registers f to be called for every ReceivedBundle event seen on the supervised cla.Manager's
// channel. The Core facade uses this to feed inbound bundles to the Forwarder without contending with Manager for
// claManager.Channel(). Only one callback is kept; a later call replaces an earlier one. Must be called before the
// Manager starts receiving traffic it needs to forward, i.e. right after NewManager.
func (manager *Manager) OnReceivedBundle(f func(cla.ConvergenceReceivedBundle)) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	manager.onReceivedBundle = f
}

// AddPeer configures a Peer to be dialed at address, starting its background dial loop. Calling AddPeer again for
// an address already configured is a no-op.
func (manager *Manager) AddPeer(address string) {
	manager.mutex.Lock()
	if _, exists := manager.byAddress[address]; exists {
		manager.mutex.Unlock()
		return
	}

	p := newConfiguredPeer(address)
	manager.byAddress[address] = p
	manager.mutex.Unlock()

	go manager.peerLoop(p)
}

// RemovePeer stops dialing address, closes any currently established connection to it, and withdraws its route, as
// the client API's remove_node handler. It reports whether a configured Peer was found for address.
func (manager *Manager) RemovePeer(address string) bool {
	manager.mutex.Lock()
	p, exists := manager.byAddress[address]
	if exists {
		delete(manager.byAddress, address)
		if existing, ok := manager.byNodeId[p.NodeId()]; ok && existing == p {
			delete(manager.byNodeId, p.NodeId())
		}
	}
	manager.mutex.Unlock()

	if !exists {
		return false
	}

	p.markRemoved()
	manager.withdrawRoute(p)
	p.closeConnection()

	return true
}

// Peers returns a snapshot of all currently known Peers, both configured and temporary.
func (manager *Manager) Peers() []*Peer {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	seen := make(map[*Peer]bool)
	peers := make([]*Peer, 0, len(manager.byAddress)+len(manager.byNodeId))
	for _, p := range manager.byAddress {
		if !seen[p] {
			seen[p] = true
			peers = append(peers, p)
		}
	}
	for _, p := range manager.byNodeId {
		if !seen[p] {
			seen[p] = true
			peers = append(peers, p)
		}
	}

	return peers
}

// Close stops the inbound dispatch loop and every configured Peer's dial loop. Already-established connections are
// left running; they are not torn down by Close.
func (manager *Manager) Close() error {
	close(manager.stopSyn)
	<-manager.stopAck

	return nil
}

func (manager *Manager) isClosing() bool {
	select {
	case <-manager.stopSyn:
		return true
	default:
		return false
	}
}

// peerLoop is the background task per configured Peer: dial, wait for the resulting session to either establish or
// fail outright, and once established wait for it to eventually disappear, then retry after an exponential,
// fully-jittered backoff.
func (manager *Manager) peerLoop(p *Peer) {
	for !manager.isClosing() {
		select {
		case <-p.removed():
			return
		default:
		}

		p.setDialing()

		conv := manager.dial(p.Address())
		p.setConnecting(conv)

		startErr, _ := conv.Start()
		if startErr != nil {
			manager.scheduleRetry(p, startErr)
			if manager.waitBackoff(p) {
				return
			}
			continue
		}

		manager.runEstablishedLoop(p, conv)

		if manager.waitBackoff(p) {
			return
		}
	}
}

// runEstablishedLoop reads conv's own status channel until it either reports the peer as appeared (recording the
// negotiated node ID, resolving any node ID collision, and publishing a route) or disappears without ever
// appearing. It returns once conv's session has ended.
func (manager *Manager) runEstablishedLoop(p *Peer, conv cla.Convergence) {
	established := false

	for {
		select {
		case <-manager.stopSyn:
			return

		case cs, ok := <-conv.Channel():
			if !ok {
				return
			}

			switch cs.MessageType {
			case cla.PeerAppeared:
				if established {
					continue
				}

				nodeId, _ := cs.Message.(bpv7.EndpointID)
				if !manager.registerEstablished(nodeId, p, true) {
					// Lost a node ID collision; the surviving side is already registered, so close our own
					// outbound Convergence and wait for its disappearance to arrive on this same channel.
					manager.closeLosingConvergence(conv)
					continue
				}

				established = true
				p.setEstablished(nodeId)
				manager.publishRoute(p)

			case cla.PeerDisappeared:
				if established {
					manager.withdrawRoute(p)
				}
				return
			}
		}
	}
}

// scheduleRetry logs a failed dial attempt. The backoff delay itself is computed and waited on by waitBackoff.
func (manager *Manager) scheduleRetry(p *Peer, err error) {
	log.WithFields(log.Fields{
		"peer":  p,
		"error": err,
	}).Info("Peer dial failed")
}

// waitBackoff marks p as Failed, sleeps for the resulting backoff delay, and reports whether the Manager was
// closed while waiting.
func (manager *Manager) waitBackoff(p *Peer) (closed bool) {
	delay := p.setFailed()
	log.WithFields(log.Fields{
		"peer":  p,
		"delay": delay,
	}).Info("Retrying Peer connection after backoff")

	select {
	case <-manager.stopSyn:
		return true
	case <-p.removed():
		return true
	case <-time.After(delay):
		return false
	}
}

// dispatchInbound is the Manager's goroutine for connections it did not itself dial: it reads every
// ConvergenceStatus reported by the supervised cla.Manager and, for a Convergence with no matching outbound dial,
// attributes it to a configured Peer sharing its node ID or creates a temporary entry for the duration of the
// session.
func (manager *Manager) dispatchInbound() {
	defer close(manager.stopAck)

	if manager.claManager == nil {
		<-manager.stopSyn
		return
	}

	for {
		select {
		case <-manager.stopSyn:
			return

		case cs, ok := <-manager.claManager.Channel():
			if !ok {
				return
			}

			switch cs.MessageType {
			case cla.PeerAppeared:
				nodeId, _ := cs.Message.(bpv7.EndpointID)
				manager.handleInboundAppeared(cs.Sender, nodeId)

			case cla.PeerDisappeared:
				manager.handleInboundDisappeared(cs.Sender)

			case cla.ReceivedBundle:
				manager.mutex.Lock()
				f := manager.onReceivedBundle
				manager.mutex.Unlock()

				if f != nil {
					crb, _ := cs.Message.(cla.ConvergenceReceivedBundle)
					f(crb)
				}
			}
		}
	}
}

func (manager *Manager) handleInboundAppeared(conv cla.Convergence, nodeId bpv7.EndpointID) {
	manager.mutex.Lock()
	existing, hasConfigured := manager.byNodeId[nodeId]
	manager.mutex.Unlock()

	target := existing
	if !hasConfigured {
		target = newTemporaryPeer(nodeId, conv)
	}

	if !manager.registerEstablished(nodeId, target, false) {
		manager.closeLosingConvergence(conv)
		return
	}

	target.setConnecting(conv)
	target.setEstablished(nodeId)

	manager.mutex.Lock()
	manager.inbound[conv.Address()] = target
	manager.mutex.Unlock()

	manager.publishRoute(target)
}

func (manager *Manager) handleInboundDisappeared(conv cla.Convergence) {
	manager.mutex.Lock()
	p, known := manager.inbound[conv.Address()]
	if known {
		delete(manager.inbound, conv.Address())
	}
	manager.mutex.Unlock()

	if !known {
		return
	}

	manager.withdrawRoute(p)

	manager.mutex.Lock()
	if existing, ok := manager.byNodeId[p.NodeId()]; ok && existing == p {
		delete(manager.byNodeId, p.NodeId())
	}
	manager.mutex.Unlock()
}

// registerEstablished records p as the Peer reachable at nodeId, resolving a collision with any other Peer already
// established under the same node ID by keeping whichever of the two connections was initiated by the numerically
// lower node ID, and closing the other. outbound reports whether p is the side this Manager itself dialed (as
// opposed to one accepted from the peer), which is what determines which comparison direction "this connection's
// initiator" resolves to. It reports whether p's connection is the one that survives.
//
// A narrow race remains between the loser's teardown event and the winner's state update sharing the same *Peer
// (the configured-Peer case, where an inbound connection overtakes that Peer's own outbound dial): the old
// Convergence's eventual disappearance is reported against whatever Sender is current on p at that time, which may
// already be the replacement. This is left unreconciled rather than adding a generation counter to every Peer.
func (manager *Manager) registerEstablished(nodeId bpv7.EndpointID, p *Peer, outbound bool) bool {
	manager.mutex.Lock()
	existing, exists := manager.byNodeId[nodeId]
	manager.mutex.Unlock()

	if exists && existing != p {
		if existingSender, ok := existing.Sender(); ok {
			cmp := strings.Compare(manager.localNodeId.String(), nodeId.String())

			// p is the side initiated by local node ID if outbound, by the peer's node ID otherwise; the
			// surviving connection is whichever one was initiated by the numerically lower node ID.
			var keepNew bool
			if outbound {
				keepNew = cmp < 0
			} else {
				keepNew = cmp > 0
			}

			if !keepNew {
				return false
			}
			manager.closeLosingConvergence(existingSender)
		}
	}

	manager.mutex.Lock()
	manager.byNodeId[nodeId] = p
	manager.mutex.Unlock()

	return true
}

// closeLosingConvergence closes the losing side of a node ID collision. TCPCLv4's Close does not currently expose a
// termination reason through the Convergence interface, so this is a plain session close rather than an explicit
// SESS_TERM{reason: ContactFailure}; see DESIGN.md.
func (manager *Manager) closeLosingConvergence(conv cla.Convergence) {
	if conv == nil {
		return
	}
	_ = conv.Close()
}

func (manager *Manager) publishRoute(p *Peer) {
	if manager.routes == nil {
		return
	}
	if sender, ok := p.Sender(); ok {
		manager.routes.AddRoute(p.NodeId(), sender)
	}
}

func (manager *Manager) withdrawRoute(p *Peer) {
	if manager.routes == nil {
		return
	}
	if sender, ok := p.Sender(); ok {
		manager.routes.RemoveRoute(p.NodeId(), sender)
	}
}
