// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"NODE_ID", "TCPCL_LISTEN_ADDRESS",
		"TCPCL_CERTIFICATE_PATH", "TCPCL_KEY_PATH", "TCPCL_TRUSTED_CERTS_PATH",
		"GRPC_CLIENTAPI_ADDRESS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingNodeId(t *testing.T) {
	clearEnv(t)
	t.Setenv("TCPCL_LISTEN_ADDRESS", "0.0.0.0:4556")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for missing NODE_ID")
	}
}

func TestLoadMissingListenAddress(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "dtn://local/")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for missing TCPCL_LISTEN_ADDRESS")
	}
}

func TestLoadNonSingletonNodeId(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "dtn://local/~group")
	t.Setenv("TCPCL_LISTEN_ADDRESS", "0.0.0.0:4556")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-singleton NODE_ID")
	}
}

func TestLoadMinimal(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "dtn://local/")
	t.Setenv("TCPCL_LISTEN_ADDRESS", "0.0.0.0:4556")

	conf, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if conf.Core.NodeId.String() != "dtn://local/" {
		t.Errorf("unexpected node id: %s", conf.Core.NodeId.String())
	}
	if conf.TCPCL.ListenAddress != "0.0.0.0:4556" {
		t.Errorf("unexpected listen address: %s", conf.TCPCL.ListenAddress)
	}
	if conf.TCPCL.TLSConfig != nil {
		t.Error("expected TLS to be disabled when no TLS env vars are set")
	}
}

func TestLoadPartialTLSIsAnError(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_ID", "dtn://local/")
	t.Setenv("TCPCL_LISTEN_ADDRESS", "0.0.0.0:4556")
	t.Setenv("TCPCL_CERTIFICATE_PATH", "/does/not/matter.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when only some TLS env vars are set")
	}
}
