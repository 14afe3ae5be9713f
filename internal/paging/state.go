package paging

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NavigationState is the orchestrator's persisted position.
type NavigationState struct {
	Current string
	// History is a stack; the last element is the most recent page.
	History []string
	// LastAction holds the last accepted time per navigation action.
	LastAction map[string]time.Time
}

func (s *NavigationState) push(page string) {
	s.History = append(s.History, page)
}

func (s *NavigationState) pop() (string, bool) {
	if len(s.History) == 0 {
		return "", false
	}
	p := s.History[len(s.History)-1]
	s.History = s.History[:len(s.History)-1]
	return p, true
}

func (s NavigationState) clone() NavigationState {
	c := NavigationState{
		Current:    s.Current,
		History:    append([]string(nil), s.History...),
		LastAction: make(map[string]time.Time, len(s.LastAction)),
	}
	for k, v := range s.LastAction {
		c.LastAction[k] = v
	}
	return c
}

func initialState() NavigationState {
	return NavigationState{Current: RootPage, LastAction: map[string]time.Time{}}
}

// Store persists NavigationState between commands.
type Store interface {
	Load() (NavigationState, error)
	Save(NavigationState) error
}

// MemoryStore keeps state in memory only.
type MemoryStore struct {
	mu    sync.Mutex
	state *NavigationState
}

func (m *MemoryStore) Load() (NavigationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return initialState(), nil
	}
	return m.state.clone(), nil
}

func (m *MemoryStore) Save(s NavigationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.clone()
	m.state = &c
	return nil
}

// FileStore keeps state as three plain files in Dir: current_page, history
// (one page per line, oldest first) and debounce ("<action> <unix nanos>").
type FileStore struct {
	Dir string
}

const (
	currentFile  = "current_page"
	historyFile  = "history"
	debounceFile = "debounce"
)

func (f *FileStore) Load() (NavigationState, error) {
	s := initialState()

	cur, err := f.read(currentFile)
	if err != nil {
		return s, err
	}
	if c := strings.TrimSpace(string(cur)); c != "" {
		s.Current = c
	}

	hist, err := f.read(historyFile)
	if err != nil {
		return s, err
	}
	s.History = lines(hist)

	deb, err := f.read(debounceFile)
	if err != nil {
		return s, err
	}
	for _, l := range lines(deb) {
		action, ns, ok := strings.Cut(l, " ")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(ns, 10, 64)
		if err != nil {
			continue
		}
		s.LastAction[action] = time.Unix(0, n)
	}
	return s, nil
}

func (f *FileStore) Save(s NavigationState) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	if err := f.write(currentFile, []byte(s.Current+"\n")); err != nil {
		return err
	}

	var hist bytes.Buffer
	for _, p := range s.History {
		hist.WriteString(p + "\n")
	}
	if err := f.write(historyFile, hist.Bytes()); err != nil {
		return err
	}

	actions := make([]string, 0, len(s.LastAction))
	for a := range s.LastAction {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	var deb bytes.Buffer
	for _, a := range actions {
		fmt.Fprintf(&deb, "%s %d\n", a, s.LastAction[a].UnixNano())
	}
	return f.write(debounceFile, deb.Bytes())
}

func (f *FileStore) read(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(f.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (f *FileStore) write(name string, data []byte) error {
	path := filepath.Join(f.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func lines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			out = append(out, l)
		}
	}
	return out
}
