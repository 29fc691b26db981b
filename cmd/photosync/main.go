package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"photosync/internal/cancel"
)

// exitInterrupted follows shell convention for runs ended by an interrupt.
const exitInterrupted = 130

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cancel.ErrCancelled) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "sync interrupted")
			os.Exit(exitInterrupted)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
