package d200

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// MaxPadding bounds the dummy-entry search in BuildBundle.
const MaxPadding = 1024

const gridColumns = 5

// Icon is one tile image inside a button bundle.
type Icon struct {
	// Index is the 0-based button index (0..13).
	Index int
	// Name is the file name inside the archive's icons/ directory.
	Name  string
	Label string
	Data  []byte
}

type viewParam struct {
	Icon string
	Text string
}

type manifestEntry struct {
	State     int
	ViewParam []viewParam
}

// Manifest returns the manifest.json document describing icons. Keys are
// "<col>_<row>" on the 5-column key grid.
func Manifest(icons []Icon) ([]byte, error) {
	m := make(map[string]manifestEntry, len(icons))
	for _, ic := range icons {
		if ic.Index < 0 || ic.Index >= ButtonCount {
			return nil, fmt.Errorf("icon %q: button index %d out of range", ic.Name, ic.Index)
		}
		key := fmt.Sprintf("%d_%d", ic.Index%gridColumns, ic.Index/gridColumns)
		m[key] = manifestEntry{
			ViewParam: []viewParam{{Icon: "icons/" + ic.Name, Text: ic.Label}},
		}
	}
	return json.Marshal(m)
}

// Bundle is an encoded SET_BUTTONS / PARTIAL_UPDATE payload.
type Bundle struct {
	Data []byte
	// Padding is the size of the dummy entry that cleared sentinel conflicts.
	Padding int
	// Patched counts sentinel bytes that had to be rewritten because no
	// padding up to MaxPadding cleared them.
	Patched int
}

type entry struct {
	name string
	data []byte
}

// BuildBundle packs icons into a stored (uncompressed) ZIP archive. A dummy
// entry is grown one byte at a time until no sentinel offset holds 0x00 or
// 0x7C; if MaxPadding is reached the remaining conflicts are patched.
func BuildBundle(icons []Icon) (Bundle, error) {
	if len(icons) == 0 {
		return Bundle{}, errors.New("d200: empty bundle")
	}
	manifest, err := Manifest(icons)
	if err != nil {
		return Bundle{}, err
	}

	entries := []entry{{"manifest.json", manifest}}
	seen := make(map[string]bool, len(icons))
	for _, ic := range icons {
		if seen[ic.Name] {
			continue
		}
		seen[ic.Name] = true
		entries = append(entries, entry{"icons/" + ic.Name, ic.Data})
	}
	return pack(entries)
}

// RepackBundle rebuilds a ready-made button archive the same way BuildBundle
// packs icons. Entries keep their names and order, are stored uncompressed,
// and any dummy.txt already present is replaced by the padding search.
func RepackBundle(archive []byte) (Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return Bundle{}, fmt.Errorf("d200: read archive: %w", err)
	}

	var entries []entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || f.Name == "dummy.txt" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Bundle{}, fmt.Errorf("d200: archive entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Bundle{}, fmt.Errorf("d200: archive entry %s: %w", f.Name, err)
		}
		entries = append(entries, entry{f.Name, data})
	}
	if len(entries) == 0 {
		return Bundle{}, errors.New("d200: empty bundle")
	}
	return pack(entries)
}

func pack(entries []entry) (Bundle, error) {
	for pad := 0; pad <= MaxPadding; pad++ {
		data, err := writeArchive(entries, pad)
		if err != nil {
			return Bundle{}, err
		}
		if !HasSentinelConflict(data) {
			return Bundle{Data: data, Padding: pad}, nil
		}
		if pad == MaxPadding {
			n := PatchSentinels(data)
			return Bundle{Data: data, Padding: pad, Patched: n}, nil
		}
	}
	panic("unreachable")
}

func writeArchive(entries []entry, pad int) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if pad > 0 {
		// 0x01 filler cannot itself land a sentinel value on a sampled offset
		if err := addStored(zw, "dummy.txt", bytes.Repeat([]byte{0x01}, pad)); err != nil {
			return nil, err
		}
	}
	for _, e := range entries {
		if err := addStored(zw, e.name, e.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func addStored(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	})
	if err != nil {
		return fmt.Errorf("bundle entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bundle entry %s: %w", name, err)
	}
	return nil
}
