package d200

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"reflect"
	"testing"
)

func TestManifest(t *testing.T) {
	b, err := Manifest([]Icon{
		{Index: 0, Name: "a.png", Label: "Lights"},
		{Index: 7, Name: "b.png"},
	})
	if err != nil {
		t.Fatalf("manifest error: %v", err)
	}

	var got map[string]manifestEntry
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("manifest is not json: %v", err)
	}
	want := map[string]manifestEntry{
		"0_0": {ViewParam: []viewParam{{Icon: "icons/a.png", Text: "Lights"}}},
		"2_1": {ViewParam: []viewParam{{Icon: "icons/b.png", Text: ""}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("manifest mismatch:\ngot:  %+v\nwant: %+v", got, want)
	}

	if _, err := Manifest([]Icon{{Index: 14, Name: "x.png"}}); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestBuildBundle(t *testing.T) {
	var icons []Icon
	for i := 0; i < TileButtons; i++ {
		data := make([]byte, 1500+i*37)
		rand.New(rand.NewSource(int64(i))).Read(data)
		icons = append(icons, Icon{
			Index: i,
			Name:  string(rune('a'+i)) + ".png",
			Data:  data,
		})
	}

	b, err := BuildBundle(icons)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	if b.Patched == 0 && HasSentinelConflict(b.Data) {
		t.Fatalf("bundle has sentinel conflicts without patching")
	}

	zr, err := zip.NewReader(bytes.NewReader(b.Data), int64(len(b.Data)))
	if err != nil {
		if b.Patched > 0 {
			t.Skipf("patched archive is not readable: %v", err)
		}
		t.Fatalf("bundle is not a zip: %v", err)
	}

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Method != zip.Store {
			t.Fatalf("%s: method %d, want store", f.Name, f.Method)
		}
	}
	if !names["manifest.json"] {
		t.Fatalf("manifest missing: %v", names)
	}
	if (b.Padding > 0) != names["dummy.txt"] {
		t.Fatalf("padding %d but dummy entry present=%v", b.Padding, names["dummy.txt"])
	}
	for _, ic := range icons {
		if !names["icons/"+ic.Name] {
			t.Fatalf("icon %s missing", ic.Name)
		}
	}

	f, err := zr.Open("icons/c.png")
	if err != nil {
		t.Fatalf("open icon: %v", err)
	}
	data, _ := io.ReadAll(f)
	if !bytes.Equal(data, icons[2].Data) && b.Patched == 0 {
		t.Fatalf("icon data differs")
	}
}

func TestBuildBundleEmpty(t *testing.T) {
	if _, err := BuildBundle(nil); err == nil {
		t.Fatalf("expected error for empty bundle")
	}
}

func TestRepackBundle(t *testing.T) {
	icon := make([]byte, 4000)
	rand.New(rand.NewSource(7)).Read(icon)

	var in bytes.Buffer
	zw := zip.NewWriter(&in)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{"dummy.txt", []byte("stale padding")},
		{"manifest.json", []byte(`{"0_0":{"State":0,"ViewParam":[{"Icon":"icons/a.png","Text":""}]}}`)},
		{"icons/a.png", icon},
	} {
		w, err := zw.Create(e.name) // deflated
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := RepackBundle(in.Bytes())
	if err != nil {
		t.Fatalf("repack: %v", err)
	}
	if b.Patched > 0 {
		t.Skipf("padding search exhausted (%d patched)", b.Patched)
	}
	if HasSentinelConflict(b.Data) {
		t.Fatalf("repacked archive has sentinel conflicts")
	}

	zr, err := zip.NewReader(bytes.NewReader(b.Data), int64(len(b.Data)))
	if err != nil {
		t.Fatalf("repacked archive is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		if f.Method != zip.Store {
			t.Fatalf("%s: method %d, want store", f.Name, f.Method)
		}
		names = append(names, f.Name)
	}
	want := []string{"manifest.json", "icons/a.png"}
	if b.Padding > 0 {
		want = append([]string{"dummy.txt"}, want...)
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}

	f, err := zr.Open("icons/a.png")
	if err != nil {
		t.Fatalf("open icon: %v", err)
	}
	data, _ := io.ReadAll(f)
	if !bytes.Equal(data, icon) {
		t.Fatalf("icon data differs after repack")
	}
}

func TestRepackBundleInvalid(t *testing.T) {
	if _, err := RepackBundle([]byte("not a zip")); err == nil {
		t.Fatalf("expected error for non-zip input")
	}
}
