// Package linesock implements the one-line-per-connection protocol shared by
// the device and paging daemons: the client writes a single newline
// terminated command, the server answers "ok", "ok <data>" or "err <reason>"
// and closes, except for streaming commands.
package linesock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxLine bounds a command line.
const MaxLine = 8192

// HandlerFunc serves one connection whose first line was line. The
// connection is closed when the handler returns.
type HandlerFunc func(ctx context.Context, line string, conn net.Conn)

// Listen binds a unix stream socket at path, removing a stale socket file.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is done, running h on its own goroutine
// for each. It waits for in-flight handlers before returning.
func Serve(ctx context.Context, ln net.Listener, h HandlerFunc) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept failed", slog.Any("error", err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			// stop blocking handlers (e.g. streams) on shutdown
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()

			line, err := ReadLine(conn)
			if err != nil {
				slog.Debug("read command failed", slog.Any("error", err))
				return
			}
			h(ctx, line, conn)
		}()
	}
}

// ReadLine reads one trimmed line without buffering past the newline, so the
// rest of the connection can still be read by the caller.
func ReadLine(r io.Reader) (string, error) {
	var sb strings.Builder
	b := make([]byte, 1)
	for sb.Len() < MaxLine {
		n, err := r.Read(b)
		if n == 1 {
			if b[0] == '\n' {
				return strings.TrimSpace(sb.String()), nil
			}
			sb.WriteByte(b[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return strings.TrimSpace(sb.String()), nil
			}
			return "", err
		}
	}
	return "", errors.New("command line too long")
}

// OK writes "ok" or "ok <data>".
func OK(w io.Writer, data string) error {
	if data == "" {
		_, err := io.WriteString(w, "ok\n")
		return err
	}
	_, err := fmt.Fprintf(w, "ok %s\n", data)
	return err
}

// Err writes "err <reason>".
func Err(w io.Writer, reason string) error {
	_, err := fmt.Fprintf(w, "err %s\n", reason)
	return err
}

// Reply is a parsed server answer.
type Reply struct {
	OK   bool
	Data string
}

// ParseReply splits a reply line into status and data.
func ParseReply(line string) Reply {
	status, data, _ := strings.Cut(strings.TrimSpace(line), " ")
	return Reply{OK: status == "ok", Data: data}
}

func (r Reply) String() string {
	s := "err"
	if r.OK {
		s = "ok"
	}
	if r.Data == "" {
		return s
	}
	return s + " " + r.Data
}

// Request dials path, sends line and returns the first reply line. timeout
// bounds the whole exchange.
func Request(ctx context.Context, path, line string, timeout time.Duration) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, strings.TrimRight(line, "\n")+"\n"); err != nil {
		return Reply{}, fmt.Errorf("write request: %w", err)
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && resp == "" {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return ParseReply(resp), nil
}

// Subscribe dials path, sends line and returns the open connection with a
// reader positioned after the request. The caller closes the connection.
func Subscribe(ctx context.Context, path, line string) (net.Conn, *bufio.Reader, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, nil, err
	}
	if _, err := io.WriteString(conn, line+"\n"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("write request: %w", err)
	}
	return conn, bufio.NewReader(conn), nil
}
