// Package storagetest holds behaviour checks shared by every
// storage.Storage implementation.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/candid-explorer-go/storage"
)

const endpoint = "rrkah-fqaaa-aaaaa-aaaaq-cai"

// Run exercises s. It writes keys under the global namespace and under
// connections of a fixed test endpoint.
func Run(t *testing.T, s storage.Storage) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, s) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, s) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, s) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, s) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, s) })
	t.Run("DeleteConnection", func(t *testing.T) { testDeleteConnection(t, s) })
}

func mustGet(t *testing.T, s storage.Storage, key string, opts ...storage.Option) *storage.Item {
	t.Helper()
	it, err := s.Get(context.Background(), key, opts...)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return it
}

func mustSet(t *testing.T, s storage.Storage, key, data string, opts ...storage.Option) {
	t.Helper()
	if err := s.Set(context.Background(), key, []byte(data), opts...); err != nil {
		t.Fatalf("Set(%s) failed: %v", key, err)
	}
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	mustSet(t, s, "greeting", "hello")
	it := mustGet(t, s, "greeting")
	if it == nil || string(it.Data) != "hello" {
		t.Fatalf("Get() = %+v", it)
	}
	if it.CreatedAt.IsZero() || it.ExpiresAt != nil {
		t.Fatalf("unexpected metadata: %+v", it)
	}
}

func testMissing(t *testing.T, s storage.Storage) {
	if it := mustGet(t, s, "never-set", storage.WithConnection(endpoint, "none")); it != nil {
		t.Fatalf("expected nil, got %+v", it)
	}
}

func testIsolation(t *testing.T, s storage.Storage) {
	mustSet(t, s, storage.SnapshotKey, "global")
	mustSet(t, s, storage.SnapshotKey, "service", storage.WithService(endpoint))
	mustSet(t, s, storage.SnapshotKey, "conn-a", storage.WithConnection(endpoint, "a"))
	mustSet(t, s, storage.SnapshotKey, "conn-b", storage.WithConnection(endpoint, "b"))

	cases := []struct {
		opts []storage.Option
		want string
	}{
		{nil, "global"},
		{[]storage.Option{storage.WithService(endpoint)}, "service"},
		{[]storage.Option{storage.WithConnection(endpoint, "a")}, "conn-a"},
		{[]storage.Option{storage.WithConnection(endpoint, "b")}, "conn-b"},
	}
	for _, tc := range cases {
		it := mustGet(t, s, storage.SnapshotKey, tc.opts...)
		if it == nil || string(it.Data) != tc.want {
			t.Fatalf("got %+v, want %s", it, tc.want)
		}
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	ttl := 100 * time.Millisecond
	mustSet(t, s, "short", "lived", storage.WithTTL(ttl))
	it := mustGet(t, s, "short")
	if it == nil || it.ExpiresAt == nil {
		t.Fatalf("item before expiry = %+v", it)
	}
	time.Sleep(ttl + 100*time.Millisecond)
	if it := mustGet(t, s, "short"); it != nil {
		t.Fatalf("item after expiry = %+v", it)
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	ns := storage.WithConnection(endpoint, "del-key")
	mustSet(t, s, "x", "1", ns)
	mustSet(t, s, "y", "2", ns)
	if err := s.Delete(context.Background(), ns, storage.WithKey("x")); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if mustGet(t, s, "x", ns) != nil {
		t.Fatal("deleted key still present")
	}
	if mustGet(t, s, "y", ns) == nil {
		t.Fatal("sibling key removed")
	}
}

func testDeleteConnection(t *testing.T, s storage.Storage) {
	gone := storage.WithConnection(endpoint, "closing")
	kept := storage.WithConnection(endpoint, "open")
	for _, k := range []string{"k1", "k2", "k3"} {
		mustSet(t, s, k, "v", gone)
	}
	mustSet(t, s, "k1", "v", kept)

	if err := s.Delete(context.Background(), gone); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if mustGet(t, s, k, gone) != nil {
			t.Fatalf("%s survived namespace deletion", k)
		}
	}
	if mustGet(t, s, "k1", kept) == nil {
		t.Fatal("other connection's data was removed")
	}
}
