// Package main starts the tracker service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	trackercmd "github.com/louisbranch/applytrack/internal/cmd/tracker"
)

func main() {
	log.SetPrefix("[TRACKER] ")
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		addr := ""
		if len(os.Args) > 2 {
			addr = os.Args[2]
		}
		if err := trackercmd.Probe(context.Background(), addr); err != nil {
			log.Fatalf("healthcheck: %v", err)
		}
		return
	}

	cfg, err := trackercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := trackercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
