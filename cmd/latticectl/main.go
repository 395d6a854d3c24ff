// Command latticectl provisions and inspects lattice tables on DynamoDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacentio/lattice/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCommand(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
