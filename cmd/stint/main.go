// Package main starts the stint runtime command.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	stintcmd "github.com/louisbranch/convening.space/internal/cmd/stint"
	"github.com/louisbranch/convening.space/internal/platform/config"
)

func main() {
	cfg, err := stintcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[STINT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stintcmd.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		config.Exitf("run: %v", err)
	}
}
