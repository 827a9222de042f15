// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peer

import (
	"crypto/tls"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
	"github.com/dtn7/dtn7-go/pkg/cla/tcpclv4"
)

// DialTCPCL returns a DialFunc which dials a plain, unencrypted TCPCLv4 connection, advertising localNodeId as this
// node's own endpoint ID. Every call creates a fresh cla.Convergence, as DialFunc requires.
func DialTCPCL(localNodeId bpv7.EndpointID) DialFunc {
	return func(address string) cla.Convergence {
		return tcpclv4.DialTCP(address, localNodeId, true)
	}
}

// DialTCPCLTLS returns a DialFunc which dials a TCPCLv4 connection upgraded to TLS before the contact exchange
// begins, advertising localNodeId as this node's own endpoint ID and authenticating with tlsConfig.
func DialTCPCLTLS(localNodeId bpv7.EndpointID, tlsConfig *tls.Config) DialFunc {
	return func(address string) cla.Convergence {
		return tcpclv4.DialTCPTLS(address, localNodeId, true, tlsConfig)
	}
}
