package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// kvImplementations runs the same contract against both backends.
func kvImplementations(t *testing.T) map[string]KV[item] {
	return map[string]KV[item]{
		"memory": NewMemory[item](),
		"gorm":   NewTable[item](testStore(t), "items"),
	}
}

func TestPutAndGet(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := kv.Put(ctx, "a", item{Name: "alpha", Count: 1}); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok, err := kv.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !ok {
				t.Fatal("Get: not found")
			}
			if got.Name != "alpha" || got.Count != 1 {
				t.Errorf("Get = %+v, want {alpha 1}", got)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(context.Background(), "nope")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if ok {
				t.Error("expected missing key to report ok=false")
			}
		})
	}
}

func TestIterateKeepsInsertionOrderOnOverwrite(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"c", "a", "b"} {
				kv.Put(ctx, id, item{Name: id, Count: i})
			}
			kv.Put(ctx, "c", item{Name: "c", Count: 99})

			var ids []string
			err := kv.Iterate(ctx, func(id string, v item) bool {
				ids = append(ids, id)
				if id == "c" && v.Count != 99 {
					t.Errorf("c.Count = %d, want 99", v.Count)
				}
				return true
			})
			if err != nil {
				t.Fatalf("Iterate: %v", err)
			}
			if fmt.Sprint(ids) != "[c a b]" {
				t.Errorf("order = %v, want [c a b]", ids)
			}

			n, _ := kv.Len(ctx)
			if n != 3 {
				t.Errorf("Len = %d, want 3", n)
			}
		})
	}
}

func TestIterateStopsEarly(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				kv.Put(ctx, fmt.Sprintf("k%d", i), item{Count: i})
			}

			seen := 0
			kv.Iterate(ctx, func(string, item) bool {
				seen++
				return seen < 2
			})
			if seen != 2 {
				t.Errorf("visited %d entries, want 2", seen)
			}
		})
	}
}

func TestTablesAreIsolatedByKind(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := NewTable[item](s, "a")
	b := NewTable[item](s, "b")
	a.Put(ctx, "x", item{Name: "from a"})

	if _, ok, _ := b.Get(ctx, "x"); ok {
		t.Error("kind b should not see kind a records")
	}
	n, _ := b.Len(ctx)
	if n != 0 {
		t.Errorf("b.Len = %d, want 0", n)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := New(dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	NewTable[item](s, "items").Put(ctx, "keep", item{Name: "kept"})
	s.Close()

	s2, err := New(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, ok, err := NewTable[item](s2, "items").Get(ctx, "keep")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Name != "kept" {
		t.Errorf("Name = %q, want %q", got.Name, "kept")
	}
}

func TestDBAccessor(t *testing.T) {
	s := testStore(t)
	if s.DB() == nil {
		t.Fatal("DB() returned nil")
	}
}

func TestCollect(t *testing.T) {
	kv := NewMemory[item]()
	ctx := context.Background()
	kv.Put(ctx, "1", item{Name: "one"})
	kv.Put(ctx, "2", item{Name: "two"})

	items, err := Collect[item](ctx, kv)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(items) != 2 || items[0].Name != "one" {
		t.Errorf("Collect = %+v", items)
	}
}
