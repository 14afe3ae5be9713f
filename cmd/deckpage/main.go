// deckpage is the page navigation daemon.
package main

import (
	"context"
	"flag"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/seagrayinc/d200deck/internal/config"
	"github.com/seagrayinc/d200deck/internal/linesock"
	"github.com/seagrayinc/d200deck/internal/lockfile"
	"github.com/seagrayinc/d200deck/internal/paging"
	"github.com/seagrayinc/d200deck/internal/tiles"
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

	pc := cfg.Paging
	src := &paging.Source{Path: pc.Dump}
	if _, err := src.Load(); err != nil {
		slog.Error("page config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := tiles.Ensure(pc.BlankIcon, func() image.Image { return tiles.Blank() }); err != nil {
		slog.Error("blank tile", slog.Any("error", err))
		os.Exit(1)
	}
	if err := tiles.Ensure(pc.ErrorIcon, func() image.Image { return tiles.Error("ERR") }); err != nil {
		slog.Error("error tile", slog.Any("error", err))
		os.Exit(1)
	}

	lock, err := lockfile.Acquire(pc.Socket + ".lock")
	if err != nil {
		slog.Error("another deckpage is running", slog.Any("error", err))
		os.Exit(1)
	}
	defer lock.Release()

	o := &paging.Orchestrator{
		Source: src,
		Store:  &paging.FileStore{Dir: pc.StateDir},
		Cache: &paging.Cache{
			Dir: pc.CacheDir,
			Renderer: &paging.ExecRenderer{
				ToolsDir: pc.ToolsDir,
				IconDir:  pc.IconDir,
				Timeout:  pc.RenderTimeout(),
			},
		},
		DeviceSocket:   cfg.Device.Socket,
		BlankIcon:      pc.BlankIcon,
		ErrorIcon:      pc.ErrorIcon,
		ActionDebounce: pc.ActionDebounce(),
		SendTimeout:    pc.SendTimeout(),
	}

	// show the saved page right away; deckd may not be up yet
	if _, err := o.Execute(ctx, paging.Render{}); err != nil {
		slog.Warn("initial render", slog.Any("error", err))
	}

	ln, err := linesock.Listen(pc.Socket)
	if err != nil {
		slog.Error("listen", slog.Any("error", err))
		os.Exit(1)
	}
	defer os.Remove(pc.Socket)
	slog.Info("paging server listening", slog.String("socket", pc.Socket), slog.String("dump", pc.Dump))

	if err := linesock.Serve(ctx, ln, o.Handle); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
