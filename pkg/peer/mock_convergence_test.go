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

// mockConv mocks a cla.Convergence which is both a ConvergenceReceiver and ConvergenceSender, modeled after
// pkg/cla's mockConvRec/mockConvSender test doubles.
type mockConv struct {
	mutex sync.Mutex

	startable bool
	address   string
	nodeId    bpv7.EndpointID
	peerId    bpv7.EndpointID

	reportChan chan cla.ConvergenceStatus
	closed     bool
}

func newMockConv(startable bool, address string, nodeId, peerId bpv7.EndpointID) *mockConv {
	return &mockConv{
		startable:  startable,
		address:    address,
		nodeId:     nodeId,
		peerId:     peerId,
		reportChan: make(chan cla.ConvergenceStatus, 8),
	}
}

func (m *mockConv) Start() (error, bool) {
	if !m.startable {
		return fmt.Errorf("mockConv %s: startable := false", m.address), true
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.reportChan <- cla.NewConvergencePeerAppeared(m, m.peerId)
	}()

	return nil, true
}

func (m *mockConv) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	go func() {
		m.reportChan <- cla.NewConvergencePeerDisappeared(m, m.peerId)
	}()

	return nil
}

func (m *mockConv) Channel() chan cla.ConvergenceStatus { return m.reportChan }
func (m *mockConv) Address() string                     { return m.address }
func (m *mockConv) IsPermanent() bool                    { return false }
func (m *mockConv) GetEndpointID() bpv7.EndpointID       { return m.nodeId }
func (m *mockConv) GetPeerEndpointID() bpv7.EndpointID   { return m.peerId }

func (m *mockConv) Send(_ bpv7.Bundle) error {
	return nil
}

// mockRouteTable records AddRoute/RemoveRoute calls for assertions.
type mockRouteTable struct {
	mutex   sync.Mutex
	added   []bpv7.EndpointID
	removed []bpv7.EndpointID
}

func newMockRouteTable() *mockRouteTable {
	return &mockRouteTable{}
}

func (rt *mockRouteTable) AddRoute(peerNodeId bpv7.EndpointID, _ cla.ConvergenceSender) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	rt.added = append(rt.added, peerNodeId)
}

func (rt *mockRouteTable) RemoveRoute(peerNodeId bpv7.EndpointID, _ cla.ConvergenceSender) {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	rt.removed = append(rt.removed, peerNodeId)
}

func (rt *mockRouteTable) addedCount() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	return len(rt.added)
}

func (rt *mockRouteTable) removedCount() int {
	rt.mutex.Lock()
	defer rt.mutex.Unlock()

	return len(rt.removed)
}
