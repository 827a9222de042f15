// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sync"
	"testing"
	"time"

	"github.com/dtn7/dtn7-go/pkg/agent"
	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// mockSubscriber is a trivial ApplicationAgent, grounded on pkg/agent's own mockAgent test double.
type mockSubscriber struct {
	mutex     sync.Mutex
	endpoints []bpv7.EndpointID
	receiver  chan agent.Message
	queue     []agent.Message
}

func newMockSubscriber(eid bpv7.EndpointID) *mockSubscriber {
	m := &mockSubscriber{
		endpoints: []bpv7.EndpointID{eid},
		receiver:  make(chan agent.Message, 8),
	}
	go m.handle()
	return m
}

func (m *mockSubscriber) handle() {
	for msg := range m.receiver {
		m.mutex.Lock()
		m.queue = append(m.queue, msg)
		m.mutex.Unlock()
	}
}

func (m *mockSubscriber) inbox() []agent.Message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue
}

func (m *mockSubscriber) Endpoints() []bpv7.EndpointID    { return m.endpoints }
func (m *mockSubscriber) MessageReceiver() chan agent.Message { return m.receiver }
func (m *mockSubscriber) MessageSender() chan agent.Message   { return nil }

func mustLocalBundle(t *testing.T, destination string) bpv7.Bundle {
	t.Helper()

	b, err := bpv7.Builder().
		Source("dtn://src/").
		Destination(destination).
		CreationTimestampNow().
		Lifetime("1h").
		PayloadBlock([]byte("hello world")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRegistryDeliverWithSubscriber(t *testing.T) {
	eid := bpv7.MustNewEndpointID("dtn://local/inbox")
	sub := newMockSubscriber(eid)

	registry := NewRegistry()
	registry.Subscribe(eid, sub)

	b := mustLocalBundle(t, "dtn://local/inbox")

	if delivered := registry.Deliver(b); !delivered {
		t.Fatal("expected delivery to the subscribed endpoint")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(sub.inbox()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sub.inbox()) != 1 {
		t.Fatalf("expected 1 message in the subscriber's inbox, got %d", len(sub.inbox()))
	}
}

func TestRegistryDeliverWithoutSubscriber(t *testing.T) {
	registry := NewRegistry()
	b := mustLocalBundle(t, "dtn://local/nobody")

	if delivered := registry.Deliver(b); delivered {
		t.Fatal("expected no delivery: no subscriber is registered")
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	eid := bpv7.MustNewEndpointID("dtn://local/inbox")
	sub := newMockSubscriber(eid)

	registry := NewRegistry()
	registry.Subscribe(eid, sub)
	if !registry.HasSubscriber(eid) {
		t.Fatal("expected a subscriber after Subscribe")
	}

	registry.Unsubscribe(eid, sub)
	if registry.HasSubscriber(eid) {
		t.Fatal("expected no subscriber after Unsubscribe")
	}

	b := mustLocalBundle(t, "dtn://local/inbox")
	if delivered := registry.Deliver(b); delivered {
		t.Fatal("expected no delivery after Unsubscribe")
	}
}
