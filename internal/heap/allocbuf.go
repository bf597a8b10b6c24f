package heap

import "sync"

// Allocation buffer sizing bounds.
const (
	MinAllocBufferBytes = 2 * 1024
	MaxAllocBufferBytes = 512 * 1024

	// Desired number of buffer refills between two pauses. Resizing aims
	// the buffer size so a thread refills about this often.
	allocBufferTargetRefills = 50
)

// AllocBuffer is a per-thread fast-path allocation buffer. Resizing adapts
// the desired size to the thread's allocation rate since the last pause.
type AllocBuffer struct {
	desiredBytes   uint64
	allocatedBytes uint64
	resizeCount    uint64
}

// NewAllocBuffer returns a buffer with the default desired size.
func NewAllocBuffer() *AllocBuffer {
	return &AllocBuffer{desiredBytes: 32 * 1024}
}

// DesiredBytes returns the current desired buffer size.
func (b *AllocBuffer) DesiredBytes() uint64 { return b.desiredBytes }

// RecordAllocation accrues bytes allocated through the buffer since the
// last pause.
func (b *AllocBuffer) RecordAllocation(n uint64) { b.allocatedBytes += n }

// ResizeCount returns how many times the buffer has been resized.
func (b *AllocBuffer) ResizeCount() uint64 { return b.resizeCount }

// Resize recomputes the desired size from the allocation volume since the
// last pause and resets the accrual. Called once per pause per thread, by
// exactly one worker.
func (b *AllocBuffer) Resize() {
	desired := b.allocatedBytes / allocBufferTargetRefills
	if desired < MinAllocBufferBytes {
		desired = MinAllocBufferBytes
	}
	if desired > MaxAllocBufferBytes {
		desired = MaxAllocBufferBytes
	}
	b.desiredBytes = desired
	b.allocatedBytes = 0
	b.resizeCount++
}

// MutatorThread models an application thread with its allocation buffer.
type MutatorThread struct {
	ID     int
	Buffer *AllocBuffer
}

// ThreadRegistry is the list of live mutator threads. The cleanup pipeline
// only reads it; registration happens outside the pause.
type ThreadRegistry struct {
	mu      sync.Mutex
	threads []*MutatorThread
}

// NewThreadRegistry returns an empty registry.
func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{}
}

// Register adds a mutator thread and returns it.
func (tr *ThreadRegistry) Register(id int) *MutatorThread {
	t := &MutatorThread{ID: id, Buffer: NewAllocBuffer()}
	tr.mu.Lock()
	tr.threads = append(tr.threads, t)
	tr.mu.Unlock()
	return t
}

// Snapshot returns the current thread list. The slice is stable for the
// duration of a pause since no threads start or stop inside one.
func (tr *ThreadRegistry) Snapshot() []*MutatorThread {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]*MutatorThread, len(tr.threads))
	copy(out, tr.threads)
	return out
}

// Len returns the number of registered threads.
func (tr *ThreadRegistry) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.threads)
}
