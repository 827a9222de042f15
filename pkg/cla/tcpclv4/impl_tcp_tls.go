// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tcpclv4

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
	"github.com/dtn7/dtn7-go/pkg/cla"
	"github.com/dtn7/dtn7-go/pkg/cla/tcpclv4/internal/msgs"
	"github.com/dtn7/dtn7-go/pkg/cla/tcpclv4/internal/utils"
)

// contextForDeadline returns a context which is cancelled after d, used to bound a TLS handshake.
func contextForDeadline(d time.Duration) context.Context {
	ctx, _ := context.WithTimeout(context.Background(), d)
	return ctx
}

// TCPTLSListener is a TCPListener variant which requires every incoming connection to upgrade to TLS before the
// TCPCLv4 contact exchange begins. It advertises ContactCanTls in its ContactHeader.
//
// This type implements the cla.ConvergenceProvider and should be supervised by a cla.Manager.
type TCPTLSListener struct {
	listenAddress string
	endpointID    bpv7.EndpointID
	tlsConfig     *tls.Config
	manager       *cla.Manager

	stopSyn chan struct{}
	stopAck chan struct{}
}

// ListenTCPTLS creates a new TCPTLSListener, bound to the given address, wrapping every accepted connection in a TLS
// server handshake using tlsConfig. A tlsConfig requiring and verifying a client certificate enables mutual
// authentication; the peer's bundle node ID is then extracted from its certificate's Subject Alternative Name.
func ListenTCPTLS(listenAddress string, endpointID bpv7.EndpointID, tlsConfig *tls.Config) *TCPTLSListener {
	return &TCPTLSListener{
		listenAddress: listenAddress,
		endpointID:    endpointID,
		tlsConfig:     tlsConfig,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

// RegisterManager tells the TCPTLSListener where to report new instances of cla.Convergence to.
func (listener *TCPTLSListener) RegisterManager(manager *cla.Manager) {
	listener.manager = manager
}

// Start this TCPTLSListener.
func (listener *TCPTLSListener) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", listener.listenAddress)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-listener.stopSyn:
				_ = ln.Close()
				close(listener.stopAck)

				return

			default:
				if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
					return
				} else if conn, err := ln.Accept(); err == nil {
					go listener.handleConn(conn)
				}
			}
		}
	}(ln)

	return nil
}

func (listener *TCPTLSListener) handleConn(conn net.Conn) {
	tlsConn := tls.Server(conn, listener.tlsConfig)
	if err := tlsConn.HandshakeContext(contextForDeadline(5 * time.Second)); err != nil {
		_ = conn.Close()
		return
	}

	peerEID, peerEIDErr := peerEIDFromTLSConn(tlsConn)
	if peerEIDErr != nil && listener.tlsConfig.ClientAuth >= tls.RequireAndVerifyClientCert {
		_ = tlsConn.Close()
		return
	}

	client := newClientTCPTLS(tlsConn, listener.endpointID, peerEID)
	listener.manager.Register(client)
}

// Close signals this TCPTLSListener to shut down.
func (listener *TCPTLSListener) Close() error {
	close(listener.stopSyn)
	<-listener.stopAck

	return nil
}

func (listener TCPTLSListener) String() string {
	return fmt.Sprintf("tcpclv4-tls://%s", listener.listenAddress)
}

// newClientTCPTLS creates a new Client on an already TLS-handshaken connection. peerEID is the bundle node ID
// extracted from the peer's certificate, the zero EndpointID if mutual authentication is disabled.
func newClientTCPTLS(conn *tls.Conn, endpointID bpv7.EndpointID, peerEID bpv7.EndpointID) *Client {
	return &Client{
		address:         conn.RemoteAddr().String(),
		activePeer:      false,
		connCloser:      conn,
		messageSwitch:   utils.NewMessageSwitchReaderWriter(conn, conn),
		nodeId:          endpointID,
		tlsPeerNodeId:   peerEID,
		contactFlagsOut: msgs.ContactCanTls,
	}
}

// DialTCPTLS tries to establish a new TCPCLv4 Client to a remote TCPTLSListener, upgrading the connection to TLS
// before the TCPCLv4 contact exchange begins.
func DialTCPTLS(address string, endpointID bpv7.EndpointID, permanent bool, tlsConfig *tls.Config) *Client {
	return &Client{
		address:    address,
		permanent:  permanent,
		activePeer: true,
		customStartFunc: func(client *Client) error {
			return tcpTlsClientStart(client, tlsConfig)
		},
		nodeId:          endpointID,
		contactFlagsOut: msgs.ContactCanTls,
	}
}

// tcpTlsClientStart is the Client's customStartFunc for a TLS-wrapped TCP dial.
func tcpTlsClientStart(client *Client, tlsConfig *tls.Config) error {
	rawConn, connErr := net.DialTimeout("tcp", client.address, time.Second)
	if connErr != nil {
		return connErr
	}

	tlsConn := tls.Client(rawConn, tlsConfig)
	if err := tlsConn.HandshakeContext(contextForDeadline(5 * time.Second)); err != nil {
		_ = rawConn.Close()
		return err
	}

	// A client dial has no ClientAuth policy of its own to enforce (that's a server-side concept); the peer's bundle
	// EID is recorded opportunistically and cross-checked against SESS_INIT's node ID if present.
	if peerEID, err := peerEIDFromTLSConn(tlsConn); err == nil {
		client.tlsPeerNodeId = peerEID
	}

	client.connCloser = tlsConn
	client.messageSwitch = utils.NewMessageSwitchReaderWriter(tlsConn, tlsConn)

	client.log().Debug("Dialed TLS successfully")
	return nil
}

// peerEIDFromTLSConn extracts the peer's bundle node ID from the certificate it presented during the TLS handshake,
// as required for TCPCL v4 mutual authentication.
func peerEIDFromTLSConn(conn *tls.Conn) (bpv7.EndpointID, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return bpv7.EndpointID{}, fmt.Errorf("peer presented no certificate")
	}

	return bundleEIDFromCertificate(state.PeerCertificates[0])
}
