package modguard

import (
	"container/heap"
)

type typedHeap[T any] struct {
	S        []T
	LessFunc func(T, T) bool
}

func newTypedHeap[T any](less func(T, T) bool) *typedHeap[T] {
	return &typedHeap[T]{LessFunc: less}
}

func (h *typedHeap[T]) Len() int {
	return len(h.S)
}

func (h *typedHeap[T]) Less(i, j int) bool {
	return h.LessFunc(h.S[i], h.S[j])
}

func (h *typedHeap[T]) Swap(i, j int) {
	h.S[i], h.S[j] = h.S[j], h.S[i]
}

func (h *typedHeap[T]) Push(x any) {
	h.S = append(h.S, x.(T))
}

func (h *typedHeap[T]) Pop() any {
	old := h.S
	n := len(old)
	x := old[n-1]
	var zero T
	old[n-1] = zero
	h.S = old[0 : n-1]
	return x
}

func (h *typedHeap[T]) HeapInit() {
	heap.Init(h)
}

func (h *typedHeap[T]) HeapPush(x T) {
	heap.Push(h, x)
}

func (h *typedHeap[T]) HeapPop() T {
	return heap.Pop(h).(T)
}

func (h *typedHeap[T]) HeapPeek() T {
	return h.S[0]
}

// Filter keeps the elements for which keep returns true and restores the
// heap order. It returns how many were dropped.
func (h *typedHeap[T]) Filter(keep func(T) bool) int {
	kept := h.S[:0]
	for _, v := range h.S {
		if keep(v) {
			kept = append(kept, v)
		}
	}
	dropped := len(h.S) - len(kept)
	var zero T
	for i := len(kept); i < len(h.S); i++ {
		h.S[i] = zero
	}
	h.S = kept
	if dropped > 0 {
		heap.Init(h)
	}
	return dropped
}
