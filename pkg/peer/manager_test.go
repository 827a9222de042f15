// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
)

func TestManagerEstablishesConfiguredPeer(t *testing.T) {
	var dialNo int64

	localNodeId := bpv7.MustNewEndpointID("dtn://local/")
	peerNodeId := bpv7.MustNewEndpointID("dtn://remote/")

	claManager := cla.NewManager()
	defer func() { _ = claManager.Close() }()

	routes := newMockRouteTable()

	dial := func(address string) cla.Convergence {
		n := atomic.AddInt64(&dialNo, 1)
		return newMockConv(true, fmt.Sprintf("%s#%d", address, n), localNodeId, peerNodeId)
	}

	manager := NewManager(claManager, dial, routes, localNodeId)
	defer func() { _ = manager.Close() }()

	manager.AddPeer("mock://remote/")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		peers := manager.Peers()
		if len(peers) == 1 && peers[0].CurrentStatus() == StatusEstablished {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	peers := manager.Peers()
	if len(peers) != 1 {
		t.Fatalf("expected exactly one Peer, got %d", len(peers))
	}
	if status := peers[0].CurrentStatus(); status != StatusEstablished {
		t.Fatalf("expected StatusEstablished, got %v", status)
	}
	if got := peers[0].NodeId(); got != peerNodeId {
		t.Fatalf("expected node ID %v, got %v", peerNodeId, got)
	}

	if n := routes.addedCount(); n != 1 {
		t.Fatalf("expected exactly one AddRoute call, got %d", n)
	}
}

func TestManagerRemovePeer(t *testing.T) {
	var dialNo int64

	localNodeId := bpv7.MustNewEndpointID("dtn://local/")
	peerNodeId := bpv7.MustNewEndpointID("dtn://remote/")

	claManager := cla.NewManager()
	defer func() { _ = claManager.Close() }()

	routes := newMockRouteTable()

	dial := func(address string) cla.Convergence {
		n := atomic.AddInt64(&dialNo, 1)
		return newMockConv(true, fmt.Sprintf("%s#%d", address, n), localNodeId, peerNodeId)
	}

	manager := NewManager(claManager, dial, routes, localNodeId)
	defer func() { _ = manager.Close() }()

	manager.AddPeer("mock://remote/")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if routes.addedCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !manager.RemovePeer("mock://remote/") {
		t.Fatal("expected RemovePeer to find the configured Peer")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if routes.removedCount() == 1 && len(manager.Peers()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if n := routes.removedCount(); n != 1 {
		t.Fatalf("expected exactly one RemoveRoute call, got %d", n)
	}
	if peers := manager.Peers(); len(peers) != 0 {
		t.Fatalf("expected no Peers left after removal, got %d", len(peers))
	}

	if manager.RemovePeer("mock://remote/") {
		t.Fatal("expected a second RemovePeer for the same address to report not-found")
	}
}

func TestManagerRetriesFailedDial(t *testing.T) {
	localNodeId := bpv7.MustNewEndpointID("dtn://local/")

	claManager := cla.NewManager()
	defer func() { _ = claManager.Close() }()

	dial := func(address string) cla.Convergence {
		return newMockConv(false, address, localNodeId, bpv7.EndpointID{})
	}

	manager := NewManager(claManager, dial, nil, localNodeId)
	defer func() { _ = manager.Close() }()

	manager.AddPeer("mock://unreachable/")

	deadline := time.Now().Add(2 * time.Second)
	var sawFailed bool
	for time.Now().Before(deadline) {
		peers := manager.Peers()
		if len(peers) == 1 && peers[0].CurrentStatus() == StatusFailed {
			sawFailed = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !sawFailed {
		t.Fatal("expected Peer to reach StatusFailed after an unstartable dial")
	}
}
