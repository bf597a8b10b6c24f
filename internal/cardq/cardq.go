// Package cardq implements the lock-free dirty-card buffer queues used
// around a pause. Evacuation workers log card addresses into buffer nodes
// chained onto one global list; redirtying claims nodes one-by-one via
// compare-and-swap so each node is processed by exactly one worker, then
// the surviving nodes are merged back into the shared queue set for the
// next pause.
package cardq

import (
	"sync/atomic"

	"github.com/regia-io/regia/internal/heap"
)

// BufferNode holds one batch of logged card addresses.
type BufferNode struct {
	id    uint64
	cards []uint64
	next  atomic.Pointer[BufferNode]
}

var nextNodeID atomic.Uint64

// NewBufferNode wraps a batch of card addresses. Nodes carry a unique ID so
// a drain can be audited.
func NewBufferNode(cards []uint64) *BufferNode {
	return &BufferNode{
		id:    nextNodeID.Add(1),
		cards: cards,
	}
}

// ID returns the node's unique identifier.
func (n *BufferNode) ID() uint64 { return n.id }

// Cards returns the logged card addresses.
func (n *BufferNode) Cards() []uint64 { return n.cards }

// Next returns the following node in the chain, nil at the end.
func (n *BufferNode) Next() *BufferNode { return n.next.Load() }

// QueueSet is a singly linked, lock-free list of buffer nodes. Pushes
// prepend via compare-and-swap; consumers claim from a private copy of the
// head, so the set's own chain survives a drain until merged away.
type QueueSet struct {
	head       atomic.Pointer[BufferNode]
	numBuffers atomic.Int64
	numCards   atomic.Int64
}

// NewQueueSet returns an empty queue set.
func NewQueueSet() *QueueSet {
	return &QueueSet{}
}

// Enqueue pushes a node onto the list. Safe from concurrent loggers.
func (qs *QueueSet) Enqueue(node *BufferNode) {
	for {
		head := qs.head.Load()
		node.next.Store(head)
		if qs.head.CompareAndSwap(head, node) {
			qs.numBuffers.Add(1)
			qs.numCards.Add(int64(len(node.cards)))
			return
		}
	}
}

// AllCompletedBuffers returns the head of the chain without detaching it.
func (qs *QueueSet) AllCompletedBuffers() *BufferNode {
	return qs.head.Load()
}

// NumBuffers returns the number of chained nodes.
func (qs *QueueSet) NumBuffers() int64 { return qs.numBuffers.Load() }

// NumCards returns the number of logged cards across all nodes.
func (qs *QueueSet) NumCards() int64 { return qs.numCards.Load() }

// IsEmpty reports whether the chain is empty.
func (qs *QueueSet) IsEmpty() bool { return qs.head.Load() == nil }

// MergeInto detaches this set's whole chain and prepends it to target,
// moving the counters along. Called at subtask teardown to hand undrained
// buffers to the next pause.
func (qs *QueueSet) MergeInto(target *QueueSet) {
	head := qs.head.Swap(nil)
	buffers := qs.numBuffers.Swap(0)
	cards := qs.numCards.Swap(0)
	if head == nil {
		return
	}

	tail := head
	for tail.Next() != nil {
		tail = tail.Next()
	}
	for {
		oldHead := target.head.Load()
		tail.next.Store(oldHead)
		if target.head.CompareAndSwap(oldHead, head) {
			target.numBuffers.Add(buffers)
			target.numCards.Add(cards)
			return
		}
	}
}

// VerifyEmpty panics unless the chain has been fully merged away.
func (qs *QueueSet) VerifyEmpty() {
	heap.Guarantee(qs.head.Load() == nil, "queue set still holds buffers after merge")
	heap.Guarantee(qs.numBuffers.Load() == 0, "buffer count %d after merge", qs.numBuffers.Load())
}

// Claimer hands out the nodes of a chain to competing workers. Each node
// is claimed by exactly one worker; claiming never blocks, only retries a
// contended compare-and-swap.
type Claimer struct {
	next atomic.Pointer[BufferNode]
}

// NewClaimer starts a claimer at the head of a chain.
func NewClaimer(head *BufferNode) *Claimer {
	c := &Claimer{}
	c.next.Store(head)
	return c
}

// Claim returns the next unowned node, or nil when the chain is drained.
// The caller owns processing of the returned node and must never touch it
// again afterwards.
func (c *Claimer) Claim() *BufferNode {
	for {
		node := c.next.Load()
		if node == nil {
			return nil
		}
		if c.next.CompareAndSwap(node, node.Next()) {
			return node
		}
	}
}
