package store

import "testing"

func TestCachePutGetCommit(t *testing.T) {
	ms := NewMemStore()
	if err := ms.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	c := NewCache(ms.Snapshot())
	c.Put([]byte("b"), []byte("2"))
	c.Delete([]byte("a"))

	if _, err := c.Get([]byte("a")); err != ErrKeyNotFound {
		t.Fatalf("expected deleted key to be absent, got err=%v", err)
	}
	v, err := c.Get([]byte("b"))
	if err != nil || string(v) != "2" {
		t.Fatalf("got %s, %v", v, err)
	}

	if err := c.Commit(ms); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.Get([]byte("a")); err != ErrKeyNotFound {
		t.Fatalf("expected a removed from store after commit")
	}
	v, err = ms.Get([]byte("b"))
	if err != nil || string(v) != "2" {
		t.Fatalf("expected b committed, got %s, %v", v, err)
	}
}

func TestCacheCloneIsolation(t *testing.T) {
	ms := NewMemStore()
	c := NewCache(ms.Snapshot())
	c.Put([]byte("x"), []byte("base"))

	clone := c.Clone()
	clone.Put([]byte("x"), []byte("forked"))

	v, _ := c.Get([]byte("x"))
	if string(v) != "base" {
		t.Fatalf("parent cache mutated by clone write: got %s", v)
	}
	cv, _ := clone.Get([]byte("x"))
	if string(cv) != "forked" {
		t.Fatalf("clone did not observe its own write: got %s", cv)
	}
}
