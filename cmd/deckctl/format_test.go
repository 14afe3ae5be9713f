package main

import (
	"bytes"
	"testing"
	"time"
)

func TestFormatterPlain(t *testing.T) {
	var buf bytes.Buffer
	f := newFormatter(&buf)
	at := time.Date(2024, 5, 1, 13, 4, 5, 6_000_000, time.UTC)
	f.Line(at, "button 3 TAP")
	if got, want := buf.String(), "13:04:05.006 button 3 TAP\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatterColorAndWidth(t *testing.T) {
	var buf bytes.Buffer
	f := &formatter{w: &buf, color: true, width: 16}
	f.Line(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "button 12 HOLD")
	want := ansiYellow + "00:00:00.000 but" + ansiReset + "\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestColorFor(t *testing.T) {
	tests := map[string]string{
		"button 1 TAP":     ansiGreen,
		"button 1 HOLD":    ansiYellow,
		"button 1 RELEASE": ansiDim,
		"evt disconnected": ansiRed,
		"evt connected":    ansiDim,
	}
	for line, want := range tests {
		if got := colorFor(line); got != want {
			t.Errorf("colorFor(%q) = %q, want %q", line, got, want)
		}
	}
}
