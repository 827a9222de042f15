// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"context"
	"testing"
	"time"

	"github.com/dtn7/dtn7-go/internal/config"
	"github.com/dtn7/dtn7-go/pkg/bpv7"
)

func mustConfig(t *testing.T, nodeId, listen string) *config.Config {
	t.Helper()

	eid, err := bpv7.NewEndpointID(nodeId)
	if err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Core:  config.Core{NodeId: eid},
		TCPCL: config.TCPCL{ListenAddress: listen},
	}
}

func TestCoreSubmitAndListenLocalDelivery(t *testing.T) {
	conf := mustConfig(t, "dtn://local/", "localhost:0")

	c, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	dest := bpv7.MustNewEndpointID("dtn://local/")

	if err := c.SubmitBundle(dest, []byte("hello"), 60_000); err != nil {
		t.Fatalf("SubmitBundle errored: %v", err)
	}

	sub, err := c.ListenBundles(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	source, payload, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive errored: %v", err)
	}
	if source != bpv7.MustNewEndpointID("dtn://local/") {
		t.Fatalf("unexpected source: %v", source)
	}
	if string(payload) != "hello" {
		t.Fatalf("unexpected payload: %q", payload)
	}
}

func TestCoreSubmitRejectsZeroLifetime(t *testing.T) {
	conf := mustConfig(t, "dtn://local/", "localhost:0")

	c, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if err := c.SubmitBundle(bpv7.MustNewEndpointID("dtn://remote/"), []byte("x"), 0); err == nil {
		t.Fatal("expected an error for a zero lifetime submission")
	}
}

func TestCoreNodeAndRouteLifecycle(t *testing.T) {
	conf := mustConfig(t, "dtn://local/", "localhost:0")

	c, err := New(conf)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	c.AddNode("mock://remote/")
	if nodes := c.ListNodes(); len(nodes) != 1 {
		t.Fatalf("expected one configured node, got %d", len(nodes))
	}
	if !c.RemoveNode("mock://remote/") {
		t.Fatal("expected RemoveNode to find the configured node")
	}
	if nodes := c.ListNodes(); len(nodes) != 0 {
		t.Fatalf("expected no nodes left after removal, got %d", len(nodes))
	}

	target := bpv7.MustNewEndpointID("dtn://target/")
	nextHop := bpv7.MustNewEndpointID("dtn://hop/")

	c.AddRoute(target, nextHop, true)
	routes := c.ListRoutes()
	if len(routes) != 1 || routes[0].Target != target || routes[0].NextHop != nextHop {
		t.Fatalf("unexpected routes: %+v", routes)
	}

	c.RemoveRoute(target, nextHop)
	if routes := c.ListRoutes(); len(routes) != 0 {
		t.Fatalf("expected no routes left after removal, got %d", len(routes))
	}
}
