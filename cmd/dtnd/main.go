// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtn7-go/internal/config"
	"github.com/dtn7/dtn7-go/internal/core"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	<-sig
}

func main() {
	conf, err := config.Load()
	if err != nil {
		log.WithField("error", err).Fatal("Failed to load configuration")
	}

	c, err := core.New(conf)
	if err != nil {
		log.WithField("error", err).Fatal("Failed to start core")
	}

	waitSigint()
	log.Info("Shutting down..")

	if err := c.Close(); err != nil {
		log.WithField("error", err).Warn("Shutdown errored")
	}
}
