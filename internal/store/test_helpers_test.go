package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/sparqlflow/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ex(local string) ir.NamedTerm {
	return ir.IRI("http://example.org/" + local)
}

func quad(s, p, o string) ir.Quad {
	return ir.NewQuad(ex(s), ex(p), ex(o))
}

// recordingListener records callbacks as "+<quad>" and "-<quad>".
type recordingListener struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingListener) OnQuadAdded(q ir.Quad) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "+"+q.String())
}

func (l *recordingListener) OnQuadRemoved(q ir.Quad) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "-"+q.String())
}

func (l *recordingListener) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}
