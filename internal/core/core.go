// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core wires together the Convergence Manager, Peer Manager, Routing Table, Bundle Store, Endpoint
// Registry and Forwarder into a single running daemon, and exposes the Go-level handlers a collaborating client
// API server would call (§6). It replaces the teacher's pkg/routing.Core/Algorithm-plugin facade, built instead
// directly atop this revision's own components.
package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/internal/config"
	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
	"github.com/dtn7/dtn7-go/pkg/cla/tcpclv4"
	"github.com/dtn7/dtn7-go/pkg/peer"
	"github.com/dtn7/dtn7-go/pkg/routing"
	"github.com/dtn7/dtn7-go/pkg/storage"
)

// Core is the running daemon: every long-lived component plus the handlers named in spec §6's Client API.
type Core struct {
	NodeId bpv7.EndpointID

	claManager *cla.Manager
	peers      *peer.Manager
	table      *routing.Table
	store      *storage.Store
	registry   *routing.Registry
	forwarder  *routing.Forwarder

	listener cla.ConvergenceProvider
}

// New builds and starts a Core from conf: the TCPCL listener, the Peer Manager with its dial function, the Routing
// Table, the Bundle Store, the Endpoint Registry, and the Forwarder, all wired together exactly as
// pkg/peer.Manager/pkg/routing.Table/pkg/routing.Forwarder's own docs describe.
func New(conf *config.Config) (*Core, error) {
	c := &Core{
		NodeId: conf.Core.NodeId,

		claManager: cla.NewManager(),
		table:      routing.NewTable(),
		store:      storage.NewStore(),
		registry:   routing.NewRegistry(),
	}

	c.forwarder = routing.NewForwarder(c.NodeId, c.store, c.table, c.registry)

	var dial peer.DialFunc
	if conf.TCPCL.TLSConfig != nil {
		c.listener = tcpclv4.ListenTCPTLS(conf.TCPCL.ListenAddress, c.NodeId, conf.TCPCL.TLSConfig)
		dial = peer.DialTCPCLTLS(c.NodeId, conf.TCPCL.TLSConfig)
	} else {
		c.listener = tcpclv4.ListenTCP(conf.TCPCL.ListenAddress, c.NodeId)
		dial = peer.DialTCPCL(c.NodeId)
	}

	c.peers = peer.NewManager(c.claManager, dial, c.table, c.NodeId)
	c.peers.OnReceivedBundle(func(crb cla.ConvergenceReceivedBundle) {
		c.forwarder.Receive(*crb.Bundle)
	})

	// Register starts the listener itself and only logs a warning on failure; there is no synchronous error to
	// propagate here, matching how the teacher's own CLA registration is fire-and-forget.
	c.claManager.Register(c.listener)
	c.claManager.RegisterEndpointID(cla.TCPCL, c.NodeId)

	log.WithFields(log.Fields{
		"node_id": c.NodeId,
		"listen":  conf.TCPCL.ListenAddress,
		"tls":     conf.TCPCL.TLSConfig != nil,
	}).Info("Core started")

	return c, nil
}

// Close shuts the daemon down: the TCPCL listener, the Peer Manager, the Forwarder, the CLA Manager and the Bundle
// Store, in that order — listener and peers first so no new work arrives while the rest winds down.
func (c *Core) Close() error {
	if c.listener != nil {
		if err := c.listener.Close(); err != nil {
			log.WithError(err).Warn("Closing TCPCL listener errored")
		}
	}
	if c.peers != nil {
		if err := c.peers.Close(); err != nil {
			log.WithError(err).Warn("Closing Peer Manager errored")
		}
	}
	if c.forwarder != nil {
		if err := c.forwarder.Close(); err != nil {
			log.WithError(err).Warn("Closing Forwarder errored")
		}
	}
	if c.claManager != nil {
		if err := c.claManager.Close(); err != nil {
			log.WithError(err).Warn("Closing CLA Manager errored")
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.WithError(err).Warn("Closing Bundle Store errored")
		}
	}

	return nil
}
