// Package util
//
// This file provides the priority queue the maple garbage collector uses to
// find entries whose deadline has passed.
//
// MapHeap combines a binary min-heap with a hash map:
//   - O(log n) AddItem, RemoveByKey and PopUntil per item
//   - O(1) Contains and GetByKey
//
// Priorities are unix nanoseconds in the maple engine, but the heap itself
// only orders uint64 values.
//
// MapHeap is not thread-safe; callers must synchronise access.
//
// Example usage:
//
//	h := NewMapHeap()
//	h.AddItem(1001, deadline1)
//	h.AddItem(1002, deadline2)
//
//	// all keys whose deadline is <= now, oldest first
//	for _, key := range h.PopUntil(now) {
//	    ...
//	}
package util

import (
	"container/heap"
	"strconv"
)

// item is one scheduled key
type item struct {
	Key      uint64 // Unique identifier for the item
	Priority uint64 // Deadline used for ordering
	index    int    // Index in the heap, maintained by heap package
}

func (i *item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap is a min-heap by priority with key-based access
type MapHeap struct {
	items    []*item          // The actual heap slice
	itemsMap map[uint64]*item // Map for O(1) access by key
}

// NewMapHeap creates a new, empty MapHeap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[uint64]*item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less orders items by priority, lowest first (part of heap.Interface)
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (h *MapHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// AddItem adds a new item to the queue or updates the priority of an existing one
func (h *MapHeap) AddItem(key, priority uint64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &item{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (h *MapHeap) Peek() (*item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopUntil removes and returns the keys of all items with priority <= limit,
// lowest priority first.
func (h *MapHeap) PopUntil(limit uint64) []uint64 {
	var keys []uint64
	for len(h.items) > 0 && h.items[0].Priority <= limit {
		it := heap.Pop(h).(*item)
		keys = append(keys, it.Key)
	}
	return keys
}

// Contains checks if a key exists in the queue
func (h *MapHeap) Contains(key uint64) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (h *MapHeap) GetByKey(key uint64) (*item, bool) {
	it, exists := h.itemsMap[key]
	return it, exists
}
