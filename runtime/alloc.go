package runtime

import (
	"github.com/composite-rt/composite"
	"github.com/composite-rt/composite/engine"
	"github.com/composite-rt/composite/errors"
)

// bumpPointerSlotOffset holds the current bump pointer as a little-
// endian u32, itself stored in guest memory per spec §9 ("host.alloc's
// bump pointer lives in guest memory; host-side state is the
// Store<T>"). It sits at the guest heap's spec §4.5 default start,
// 0xC000; the slot itself occupies the first 4 bytes, so the first
// address Alloc hands out is firstAllocOffset.
const (
	bumpPointerSlotOffset = 0xC000
	firstAllocOffset      = bumpPointerSlotOffset + 4
)

// BumpAllocator is the composite.Allocator every Instance exposes,
// backing the guest-visible host.alloc import. It never reuses freed
// space (spec §5 "memory is never freed piecewise").
type BumpAllocator struct {
	mem *engine.Memory
}

func newBumpAllocator(mem *engine.Memory) (*BumpAllocator, error) {
	if err := mem.EnsureSize(firstAllocOffset); err != nil {
		return nil, err
	}
	if err := mem.WriteU32(bumpPointerSlotOffset, firstAllocOffset); err != nil {
		return nil, err
	}
	return &BumpAllocator{mem: mem}, nil
}

// Alloc returns a fresh, align-rounded region of size bytes.
func (a *BumpAllocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	current, err := a.mem.ReadU32(bumpPointerSlotOffset)
	if err != nil {
		return 0, err
	}
	ptr := alignUp(current, align)
	next := ptr + size
	if next < ptr {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	if err := a.mem.EnsureSize(next); err != nil {
		return 0, err
	}
	if err := a.mem.WriteU32(bumpPointerSlotOffset, next); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Free is a no-op: the bump allocator never reclaims space.
func (a *BumpAllocator) Free(ptr, size, align uint32) {}

func alignUp(v, align uint32) uint32 {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

var _ composite.Allocator = (*BumpAllocator)(nil)
