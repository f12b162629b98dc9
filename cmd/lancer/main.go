package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	lancercmd "github.com/louisbranch/lancer-system/internal/cmd/lancer"
)

func main() {
	cfg, err := lancercmd.ParseConfig()
	if err != nil {
		lancercmd.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = lancercmd.Execute(ctx, cfg, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		lancercmd.Fatal(err)
	}
}
