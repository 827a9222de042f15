// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla defines the interfaces shared by all convergence layer adapters.
//
// A ConvergenceReceiver receives bundles from a remote peer and forwards them
// to a channel. A ConvergenceSender transmits bundles to a remote peer. Both
// extend Convergence, which a Manager uses to start, stop and supervise them.
// A ConvergenceProvider does not represent a single peer connection itself,
// but listens for and creates new Convergence instances, e.g., a TCP listener
// accepting incoming connections.
package cla

import "github.com/dtn7/dtn7-go/pkg/bpv7"

// Convergable is implemented by both Convergence and ConvergenceProvider. It exists so a Manager's Register and
// Unregister methods can accept either kind without the caller having to distinguish them up front.
type Convergable interface{}

// Convergence is an interface to describe all kinds of Convergence Layer Adapters. There should not be a direct
// implementation of this interface. One must implement ConvergenceReceiver and/or ConvergenceSender, which are both
// extending this interface. A type can be both a ConvergenceReceiver and ConvergenceSender.
type Convergence interface {
	// Start starts this Convergence{Receiver,Sender} and might return an error and a boolean indicating if another
	// Start should be tried later.
	Start() (error, bool)

	// Close signals this Convergence{Receiver,Sender} to shut down.
	Close() error

	// Address should return a unique address string to both identify this Convergence{Receiver,Sender} and ensure
	// it will not be opened twice.
	Address() string

	// IsPermanent returns true, if this CLA should not be removed after failures.
	IsPermanent() bool

	// Channel returns a channel of ConvergenceStatus updates, e.g., received bundles or peer (dis)appearances.
	Channel() chan ConvergenceStatus
}

// ConvergenceReceiver is an interface for types which are able to receive bundles from a remote peer.
type ConvergenceReceiver interface {
	Convergence

	// GetEndpointID returns the endpoint ID assigned to this CLA.
	GetEndpointID() bpv7.EndpointID
}

// ConvergenceSender is an interface for types which are able to transmit bundles to another node.
type ConvergenceSender interface {
	Convergence

	// Send transmits a bundle to this ConvergenceSender's endpoint. This method should be thread safe and finish
	// transmitting one bundle before acting on the next.
	Send(bndl bpv7.Bundle) error

	// GetPeerEndpointID returns the endpoint ID assigned to this CLA's peer, if it's known. Otherwise the zero
	// endpoint will be returned.
	GetPeerEndpointID() bpv7.EndpointID
}

// ConvergenceProvider creates Convergence instances, e.g., by listening for incoming connections, and reports them
// to a registered Manager for supervision.
type ConvergenceProvider interface {
	// RegisterManager tells this ConvergenceProvider where to report new Convergence instances to.
	RegisterManager(manager *Manager)

	// Start this ConvergenceProvider.
	Start() error

	// Close signals this ConvergenceProvider to shut down.
	Close() error
}
