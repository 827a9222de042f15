// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sync"

	"github.com/dtn7/dtn7-go/pkg/agent"
	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// Registry is the Endpoint Registry: it maps a local endpoint ID to the set of currently active subscribers
// supplied by the external client API, exactly as spec §4.7 describes. Unlike a plain fan-out multiplexer that
// hands a Message to every interested ApplicationAgent regardless of whether any exist, the Registry additionally
// needs to know, per subscribe, whether the set was empty, so the Forwarder can fall back to store-and-forward
// instead of silently dropping the bundle.
type Registry struct {
	mutex       sync.RWMutex
	subscribers map[bpv7.EndpointID][]agent.ApplicationAgent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subscribers: make(map[bpv7.EndpointID][]agent.ApplicationAgent)}
}

// Subscribe adds app as a subscriber for eid.
func (r *Registry) Subscribe(eid bpv7.EndpointID, app agent.ApplicationAgent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.subscribers[eid] = append(r.subscribers[eid], app)
}

// Unsubscribe removes app as a subscriber for eid, as when a client disconnects.
func (r *Registry) Unsubscribe(eid bpv7.EndpointID, app agent.ApplicationAgent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	subs := r.subscribers[eid]
	for i, sub := range subs {
		if sub == app {
			r.subscribers[eid] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subscribers[eid]) == 0 {
		delete(r.subscribers, eid)
	}
}

// HasSubscriber reports whether any subscriber is currently registered for eid.
func (r *Registry) HasSubscriber(eid bpv7.EndpointID) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.subscribers[eid]) > 0
}

// Deliver broadcasts b to every subscriber of its destination EID, as a BundleMessage. It reports whether the
// bundle was handed to at least one subscriber; false means the caller should retain the bundle in the store for
// later delivery.
func (r *Registry) Deliver(b bpv7.Bundle) bool {
	dest := b.PrimaryBlock.Destination

	r.mutex.RLock()
	subs := append([]agent.ApplicationAgent(nil), r.subscribers[dest]...)
	r.mutex.RUnlock()

	for _, sub := range subs {
		sub.MessageReceiver() <- agent.BundleMessage{Bundle: b}
	}

	return len(subs) > 0
}
