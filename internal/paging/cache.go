package paging

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
)

// SystemPage is the cache namespace for navigation glyphs.
const SystemPage = "_sys"

// Key is the content address of a tile on page. The icon stands in for
// an empty label.
func Key(page, label, icon string) string {
	name := label
	if name == "" {
		name = icon
	}
	h := fnv.New32a()
	h.Write([]byte(page + "\n" + name))
	return fmt.Sprintf("%08x", h.Sum32())
}

// Cache stores rendered tiles under Dir/<page>/<key>.png. Entries are never
// expired.
type Cache struct {
	Dir      string
	Renderer Renderer
}

func pageDir(page string) string {
	return strings.NewReplacer("/", "_", string(os.PathSeparator), "_", "..", "_").Replace(page)
}

// Path returns the artifact location for key on page.
func (c *Cache) Path(page, key string) string {
	return filepath.Join(c.Dir, pageDir(page), key+".png")
}

// Ensure returns the artifact for t, rendering it on a miss. A failed render
// leaves nothing behind.
func (c *Cache) Ensure(ctx context.Context, page string, t Tile) (path string, hit bool, err error) {
	path = c.Path(page, Key(page, t.Label, t.Icon))
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		return path, true, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".render-*.png")
	if err != nil {
		return "", false, err
	}
	tmp := f.Name()
	f.Close()

	if err := c.Renderer.Render(ctx, t, tmp); err != nil {
		os.Remove(tmp)
		return "", false, err
	}
	if fi, err := os.Stat(tmp); err != nil || fi.Size() == 0 {
		os.Remove(tmp)
		return "", false, fmt.Errorf("%w: %s produced no image", ErrRenderFailed, page)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", false, err
	}
	return path, false, nil
}
