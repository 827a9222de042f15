// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2019, 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config reads the daemon's startup configuration from the environment variables spec §6 names, in place of
// the teacher's TOML file.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

// Core describes the Core-configuration block: this node's own identity.
type Core struct {
	NodeId bpv7.EndpointID
}

// TCPCL describes the TCPCLv4 convergence layer's configuration block.
type TCPCL struct {
	ListenAddress string

	// TLSConfig is nil unless all three of TCPCL_CERTIFICATE_PATH, TCPCL_KEY_PATH and TCPCL_TRUSTED_CERTS_PATH are
	// set, per spec §6's "Enable TLS with mutual auth when all three are set".
	TLSConfig *tls.Config
}

// ClientAPI describes the external client API's configuration block. Per SPEC_FULL.md's Non-goals, this core does
// not itself implement the gRPC server spec §6 describes; GRPC_CLIENTAPI_ADDRESS is read and carried here only so a
// collaborating gRPC server process, started separately, can be told where this core's Go-level handlers would be
// reached, and so process-fatal configuration errors (§7) are detected at the same startup step as everything else.
type ClientAPI struct {
	ListenAddress string
}

// Config is the fully parsed startup configuration.
type Config struct {
	Core      Core
	TCPCL     TCPCL
	ClientAPI ClientAPI
}

// Load reads and validates the daemon's configuration from the environment, aggregating every problem found into a
// single error via go-multierror, matching cmd/dtnd/configuration.go's own per-block validation idiom.
func Load() (*Config, error) {
	var errs *multierror.Error
	var conf Config

	nodeIdStr := os.Getenv("NODE_ID")
	if nodeIdStr == "" {
		errs = multierror.Append(errs, fmt.Errorf("NODE_ID is required"))
	} else if nodeId, err := bpv7.NewEndpointID(nodeIdStr); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("NODE_ID %q is not a valid endpoint ID: %w", nodeIdStr, err))
	} else if !nodeId.IsSingleton() {
		errs = multierror.Append(errs, fmt.Errorf("NODE_ID %q must be a singleton endpoint", nodeIdStr))
	} else {
		conf.Core.NodeId = nodeId
	}

	conf.TCPCL.ListenAddress = os.Getenv("TCPCL_LISTEN_ADDRESS")
	if conf.TCPCL.ListenAddress == "" {
		errs = multierror.Append(errs, fmt.Errorf("TCPCL_LISTEN_ADDRESS is required"))
	}

	if tlsConfig, err := loadTLSConfig(); err != nil {
		errs = multierror.Append(errs, err)
	} else {
		conf.TCPCL.TLSConfig = tlsConfig
	}

	conf.ClientAPI.ListenAddress = os.Getenv("GRPC_CLIENTAPI_ADDRESS")

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// loadTLSConfig builds a mutual-auth tls.Config from TCPCL_CERTIFICATE_PATH/TCPCL_KEY_PATH/TCPCL_TRUSTED_CERTS_PATH.
// If none of the three are set, TLS is simply disabled (nil, nil). If only some are set, that is a configuration
// error: spec §6 requires all three together.
func loadTLSConfig() (*tls.Config, error) {
	certPath := os.Getenv("TCPCL_CERTIFICATE_PATH")
	keyPath := os.Getenv("TCPCL_KEY_PATH")
	trustedPath := os.Getenv("TCPCL_TRUSTED_CERTS_PATH")

	switch {
	case certPath == "" && keyPath == "" && trustedPath == "":
		return nil, nil
	case certPath == "" || keyPath == "" || trustedPath == "":
		return nil, fmt.Errorf(
			"TCPCL_CERTIFICATE_PATH, TCPCL_KEY_PATH and TCPCL_TRUSTED_CERTS_PATH must all be set together to enable TLS")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading TCPCL TLS certificate/key: %w", err)
	}

	trustedPEM, err := os.ReadFile(trustedPath)
	if err != nil {
		return nil, fmt.Errorf("reading TCPCL_TRUSTED_CERTS_PATH: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(trustedPEM) {
		return nil, fmt.Errorf("no valid certificates found in TCPCL_TRUSTED_CERTS_PATH")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		RootCAs:      pool,
	}, nil
}
