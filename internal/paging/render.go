package paging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrRenderFailed is returned when a tile could not be drawn or the page
// could not be delivered to the device daemon.
var ErrRenderFailed = errors.New("render failed")

// Tile is the input of one render.
type Tile struct {
	Label string
	// Icon is "mdi:<name>", an image path, or empty.
	Icon  string
	Style Style
}

// Renderer draws a tile into a PNG at out, overwriting it.
type Renderer interface {
	Render(ctx context.Context, t Tile, out string) error
}

// ExecRenderer runs the drawing tools found in ToolsDir.
type ExecRenderer struct {
	ToolsDir string
	// IconDir resolves relative image icons.
	IconDir string
	// Timeout bounds each tool invocation.
	Timeout time.Duration
}

// Commands returns the tool invocations for t, in order. The first element of
// each is the tool name.
func (r *ExecRenderer) Commands(t Tile, out string) [][]string {
	size := fmt.Sprintf("--size=%d", TileSize)
	var cmds [][]string

	bg := t.Style.Background
	transparent := bg == "" || strings.EqualFold(bg, "transparent")
	if t.Style.Radius > 0 && !transparent {
		cmds = append(cmds,
			[]string{"draw_square", "transparent", size, out},
			[]string{"draw_border", bg, size, fmt.Sprintf("--radius=%d", t.Style.Radius), out},
		)
	} else {
		if transparent {
			bg = "transparent"
		}
		cmds = append(cmds, []string{"draw_square", bg, size, out})
	}

	switch {
	case strings.HasPrefix(t.Icon, "mdi:"):
		cmds = append(cmds, []string{"draw_mdi", t.Icon, t.Style.IconColor, fmt.Sprintf("--size=%d", t.Style.IconSize), out})
	case t.Icon != "":
		icon := t.Icon
		if !filepath.IsAbs(icon) && r.IconDir != "" {
			icon = filepath.Join(r.IconDir, icon)
		}
		cmds = append(cmds, []string{"draw_over", icon, out})
	}

	if t.Label != "" {
		cmds = append(cmds, []string{
			"draw_text",
			"--text=" + t.Label,
			"--text_color=" + t.Style.TextColor,
			"--text_align=bottom",
			fmt.Sprintf("--text_size=%d", t.Style.TextSize),
			out,
		})
	}
	return cmds
}

// Render runs each drawing step and stops at the first failure.
func (r *ExecRenderer) Render(ctx context.Context, t Tile, out string) error {
	for _, c := range r.Commands(t, out) {
		if err := r.run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *ExecRenderer) run(ctx context.Context, c []string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, filepath.Join(r.ToolsDir, c[0]), c[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrRenderFailed, c[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
