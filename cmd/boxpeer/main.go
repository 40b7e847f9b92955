package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"boxpeer/cmd/boxpeer/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}
