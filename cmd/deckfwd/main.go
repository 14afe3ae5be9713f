// deckfwd forwards button taps from deckd to deckpage.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seagrayinc/d200deck/internal/config"
	"github.com/seagrayinc/d200deck/internal/forwarder"
)

func main() {
	cfgPath := flag.String("config", "", "settings file (YAML)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(config.NewLogger(os.Stderr, cfg.Debug || *debug))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	f := forwarder.New(cfg.Device.Socket, cfg.Paging.Socket)
	f.Debouncer = forwarder.NewDebouncer(cfg.Forwarder.Debounce())
	f.ForwardTimeout = cfg.Forwarder.ForwardTimeout()
	f.ReconnectDelay = cfg.Forwarder.ReconnectDelay()

	slog.Info("forwarding", slog.String("from", cfg.Device.Socket), slog.String("to", cfg.Paging.Socket))
	if err := f.Run(ctx); err != nil {
		slog.Error("forwarder stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
