package util

import (
	"reflect"
	"testing"
)

func TestAddItemKeepsMinimumOnTop(t *testing.T) {
	mh := NewMapHeap()

	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 50)

	if mh.Len() != 3 {
		t.Fatalf("Heap should have 3 items, but has %d", mh.Len())
	}
	for _, key := range []uint64{1, 2, 3} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %d", key)
		}
	}

	top, ok := mh.Peek()
	if !ok {
		t.Fatal("Peek() should return an item")
	}
	if top.Key != 3 || top.Priority != 50 {
		t.Errorf("Expected min item to be (3,50), got (%d,%d)", top.Key, top.Priority)
	}
}

func TestAddItemUpdatesExistingKey(t *testing.T) {
	mh := NewMapHeap()
	mh.AddItem(1, 100)
	mh.AddItem(2, 200)

	mh.AddItem(1, 300)

	if mh.Len() != 2 {
		t.Fatalf("update must not add a second item, got %d items", mh.Len())
	}
	top, _ := mh.Peek()
	if top.Key != 2 {
		t.Errorf("Min item should now be key 2, got %d", top.Key)
	}

	mh.AddItem(2, 50)
	top, _ = mh.Peek()
	if top.Key != 2 || top.Priority != 50 {
		t.Errorf("Min item should now be (2,50), got (%d,%d)", top.Key, top.Priority)
	}
}

func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap()
	mh.AddItem(1, 100)
	mh.AddItem(2, 200)
	mh.AddItem(3, 300)

	priority, ok := mh.RemoveByKey(2)
	if !ok || priority != 200 {
		t.Fatalf("RemoveByKey(2) = (%d, %v), want (200, true)", priority, ok)
	}
	if mh.Contains(2) {
		t.Error("Heap should not contain key 2 after removal")
	}
	if _, ok := mh.RemoveByKey(99); ok {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

func TestPopUntil(t *testing.T) {
	mh := NewMapHeap()
	mh.AddItem(5, 50)
	mh.AddItem(3, 30)
	mh.AddItem(1, 10)
	mh.AddItem(4, 40)
	mh.AddItem(2, 20)

	got := mh.PopUntil(30)
	if want := []uint64{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("PopUntil(30) = %v, want %v", got, want)
	}
	if mh.Len() != 2 {
		t.Fatalf("expected 2 remaining items, got %d", mh.Len())
	}
	if got := mh.PopUntil(5); got != nil {
		t.Fatalf("PopUntil below the minimum should return nothing, got %v", got)
	}
	if got := mh.PopUntil(1000); len(got) != 2 {
		t.Fatalf("PopUntil(1000) should drain the heap, got %v", got)
	}
}

func TestPeekEmptyHeap(t *testing.T) {
	if _, ok := NewMapHeap().Peek(); ok {
		t.Error("Peek on empty heap should return ok=false")
	}
}

func TestHashStringDependsOnSeed(t *testing.T) {
	if HashString("snapshot", 1) == HashString("snapshot", 2) {
		t.Error("different seeds should produce different hashes")
	}
	if HashString("snapshot", 7) != HashString("snapshot", 7) {
		t.Error("hash must be deterministic for a fixed seed")
	}
}
