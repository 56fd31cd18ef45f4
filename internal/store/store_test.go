package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type testDoc struct {
	Entries map[string]string `json:"entries"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestUpdateJSON_CreatesDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	errUpdate := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
		if doc.Entries != nil {
			t.Fatalf("expected zero-value doc, got %+v", doc)
		}
		doc.Entries = map[string]string{"a": "1"}
		return nil
	})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}

	var got testDoc
	errView := ViewJSON(ctx, s, "doc.json", func(doc testDoc) error {
		got = doc
		return nil
	})
	if errView != nil {
		t.Fatalf("view: %v", errView)
	}
	if got.Entries["a"] != "1" {
		t.Fatalf("expected persisted entry, got %+v", got)
	}
}

func TestUpdateJSON_CorruptDocumentFallsBackToEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if errWrite := os.WriteFile(filepath.Join(s.Root(), "doc.json"), []byte("{not json"), 0o644); errWrite != nil {
		t.Fatalf("write corrupt doc: %v", errWrite)
	}

	errUpdate := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
		if doc.Entries != nil {
			t.Fatalf("expected empty doc for corrupt file, got %+v", doc)
		}
		doc.Entries = map[string]string{"fresh": "yes"}
		return nil
	})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
}

func TestUpdate_ConcurrentDisjointWritersLoseNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errUpdate := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
				if doc.Entries == nil {
					doc.Entries = make(map[string]string)
				}
				key := fmt.Sprintf("w%d", n)
				doc.Entries[key] = key
				return nil
			})
			if errUpdate != nil {
				t.Errorf("writer %d: %v", n, errUpdate)
			}
		}(i)
	}
	wg.Wait()

	var got testDoc
	if errView := ViewJSON(ctx, s, "doc.json", func(doc testDoc) error {
		got = doc
		return nil
	}); errView != nil {
		t.Fatalf("view: %v", errView)
	}
	if len(got.Entries) != writers {
		t.Fatalf("expected %d entries, got %d", writers, len(got.Entries))
	}
}

func TestUpdate_ConcurrentSameKeyWritesStayWellFormed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errUpdate := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
				doc.Entries = map[string]string{"winner": fmt.Sprintf("w%d", n)}
				return nil
			})
			if errUpdate != nil {
				t.Errorf("writer %d: %v", n, errUpdate)
			}
		}(i)
	}
	wg.Wait()

	// The final document must be exactly one submitted version, never an
	// interleaving of two writes.
	data, errRead := os.ReadFile(filepath.Join(s.Root(), "doc.json"))
	if errRead != nil {
		t.Fatalf("read doc: %v", errRead)
	}
	var got testDoc
	if errUnmarshal := json.Unmarshal(data, &got); errUnmarshal != nil {
		t.Fatalf("final document is not valid JSON: %v", errUnmarshal)
	}
	if len(got.Entries) != 1 || got.Entries["winner"] == "" {
		t.Fatalf("expected exactly one winner entry, got %+v", got.Entries)
	}
}

func TestUpdate_FnErrorLeavesDocumentUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if errSeed := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
		doc.Entries = map[string]string{"a": "1"}
		return nil
	}); errSeed != nil {
		t.Fatalf("seed: %v", errSeed)
	}

	wantErr := fmt.Errorf("boom")
	errUpdate := UpdateJSON(ctx, s, "doc.json", func(doc *testDoc) error {
		doc.Entries["a"] = "2"
		return wantErr
	})
	if errUpdate == nil {
		t.Fatal("expected error from failing update")
	}

	var got testDoc
	if errView := ViewJSON(ctx, s, "doc.json", func(doc testDoc) error {
		got = doc
		return nil
	}); errView != nil {
		t.Fatalf("view: %v", errView)
	}
	if got.Entries["a"] != "1" {
		t.Fatalf("failed update must not persist, got %+v", got.Entries)
	}
}
