// pscan probes a range of TCP and UDP ports on one host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pscan/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pscan: %v\n", err)
		os.Exit(1)
	}
}
