// deckctl sends one-off commands to the deck daemons and watches the button
// stream.
//
//	deckctl device set-brightness 40
//	deckctl page go media
//	deckctl watch
//	deckctl probe
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/seagrayinc/d200deck/internal/config"
	"github.com/seagrayinc/d200deck/internal/hid"
	"github.com/seagrayinc/d200deck/internal/linesock"
)

const usage = `usage: deckctl [--config file] <command>

  device <line...>   send one command to deckd
  page <line...>     send one command to deckpage
  watch              print the button stream
  probe              list HID devices
`

func main() {
	cfgPath := flag.String("config", "", "settings file (YAML)")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	switch args[0] {
	case "device":
		err = request(ctx, cfg.Device.Socket, args[1:], *timeout)
	case "page":
		err = request(ctx, cfg.Paging.Socket, args[1:], *timeout)
	case "watch":
		err = watch(ctx, cfg.Device.Socket, os.Stdout)
	case "probe":
		err = probe(os.Stdout, cfg.Device.VendorID, cfg.Device.ProductID)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func request(ctx context.Context, sock string, words []string, timeout time.Duration) error {
	if len(words) == 0 {
		return errors.New("missing command")
	}
	reply, err := linesock.Request(ctx, sock, strings.Join(words, " "), timeout)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	if !reply.OK {
		return fmt.Errorf("%s rejected the command", sock)
	}
	return nil
}

func watch(ctx context.Context, sock string, w io.Writer) error {
	conn, r, err := linesock.Subscribe(ctx, sock, "read-buttons")
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	first, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if reply := linesock.ParseReply(first); !reply.OK {
		return fmt.Errorf("subscribe: %s", reply)
	}

	f := newFormatter(w)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		f.Line(time.Now(), sc.Text())
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errors.New("stream closed")
}

func probe(w io.Writer, vid, pid uint16) error {
	mgr, err := hid.NewManager()
	if err != nil {
		return err
	}
	infos, err := mgr.List()
	if err != nil {
		return err
	}
	found := false
	for _, info := range infos {
		mark := " "
		if info.VendorID == vid && info.ProductID == pid {
			mark, found = "*", true
		}
		fmt.Fprintf(w, "%s %04x:%04x %-24s %-24s %s\n", mark, info.VendorID, info.ProductID, info.Manufacturer, info.Product, info.Path)
	}
	if !found {
		fmt.Fprintln(w, hid.Probe(vid, pid))
	}
	return nil
}
