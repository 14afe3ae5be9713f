// deckd owns the D200 HID handle and serves device commands on a unix socket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seagrayinc/d200deck/internal/config"
	"github.com/seagrayinc/d200deck/internal/device"
	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/internal/lockfile"
	"github.com/seagrayinc/d200deck/internal/server"
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

	lock, err := lockfile.Acquire(cfg.Device.Socket + ".lock")
	if err != nil {
		slog.Error("another deckd is running", slog.Any("error", err))
		os.Exit(1)
	}
	defer lock.Release()

	mgr, err := hid.NewManager()
	if err != nil {
		slog.Error("hid init", slog.Any("error", err))
		os.Exit(1)
	}

	t := device.New(mgr)
	t.VendorID = cfg.Device.VendorID
	t.ProductID = cfg.Device.ProductID
	t.Path = cfg.Device.Path
	defer t.Close()

	if err := t.Open(); err != nil {
		// the poll loop keeps retrying
		slog.Warn("device not available yet", slog.Any("error", err), slog.String("hint", server.NotFoundHint(t)))
	}

	srv := server.New(t)
	srv.PollTimeout = cfg.Device.PollTimeout()
	srv.KeepAlive = cfg.Device.KeepAlive()
	srv.ReopenInterval = cfg.Device.ReopenInterval()

	if err := srv.ListenAndServe(ctx, cfg.Device.Socket); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
