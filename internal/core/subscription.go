// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"context"
	"errors"

	"github.com/dtn7/dtn7-go/pkg/agent"
	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// subscriptionBacklog bounds how many undelivered BundleMessages a Subscription can queue before the Forwarder's
// single delivery goroutine would block on a slow listen_bundles caller.
const subscriptionBacklog = 64

// ErrSubscriptionClosed is returned by Subscription.Receive once the Subscription has been closed and no further
// Bundle will arrive.
var ErrSubscriptionClosed = errors.New("core: subscription closed")

// Subscription is the ApplicationAgent a listen_bundles call hands back to its caller (§6): every Bundle addressed
// to endpoint, delivered by the Routing Table's Endpoint Registry, arrives on this Subscription's MessageReceiver
// and is surfaced one at a time through Receive.
type Subscription struct {
	endpoint bpv7.EndpointID

	registry routingUnsubscriber

	receiver chan agent.Message
	sender   chan agent.Message

	done chan struct{}
}

// routingUnsubscriber is the subset of *routing.Registry a Subscription needs, named here to keep this file's
// dependency surface explicit.
type routingUnsubscriber interface {
	Unsubscribe(eid bpv7.EndpointID, app agent.ApplicationAgent)
}

func newSubscription(endpoint bpv7.EndpointID, registry routingUnsubscriber) *Subscription {
	return &Subscription{
		endpoint: endpoint,
		registry: registry,
		receiver: make(chan agent.Message, subscriptionBacklog),
		sender:   make(chan agent.Message),
		done:     make(chan struct{}),
	}
}

// Endpoints reports the single endpoint this Subscription was created for.
func (s *Subscription) Endpoints() []bpv7.EndpointID {
	return []bpv7.EndpointID{s.endpoint}
}

// MessageReceiver is where the Endpoint Registry delivers BundleMessages addressed to this Subscription's endpoint.
func (s *Subscription) MessageReceiver() chan agent.Message {
	return s.receiver
}

// MessageSender exists to satisfy agent.ApplicationAgent; a Subscription never originates outgoing Bundles, so
// nothing is ever read from it besides its close on Close.
func (s *Subscription) MessageSender() chan agent.Message {
	return s.sender
}

// Receive blocks until a Bundle addressed to this Subscription's endpoint arrives, the Subscription is closed, or
// ctx is done, returning the Bundle's source endpoint and payload per the listen_bundles stream item shape (§6).
func (s *Subscription) Receive(ctx context.Context) (source bpv7.EndpointID, payload []byte, err error) {
	select {
	case m, ok := <-s.receiver:
		if !ok {
			return bpv7.EndpointID{}, nil, ErrSubscriptionClosed
		}
		bm, ok := m.(agent.BundleMessage)
		if !ok {
			return s.Receive(ctx)
		}
		pb, perr := bm.Bundle.PayloadBlock()
		if perr != nil {
			return bpv7.EndpointID{}, nil, perr
		}
		return bm.Bundle.PrimaryBlock.SourceNode, pb.Value.(*bpv7.PayloadBlock).Data(), nil

	case <-s.done:
		return bpv7.EndpointID{}, nil, ErrSubscriptionClosed

	case <-ctx.Done():
		return bpv7.EndpointID{}, nil, ctx.Err()
	}
}

// Close unsubscribes from the Endpoint Registry and unblocks any in-flight Receive. Per the ApplicationAgent
// contract it closes MessageSender; MessageReceiver is intentionally left open since nothing else writes to it once
// Unsubscribe has returned, and closing a channel a concurrent Deliver might still be sending on would panic.
func (s *Subscription) Close() error {
	s.registry.Unsubscribe(s.endpoint, s)
	close(s.sender)
	close(s.done)
	return nil
}
