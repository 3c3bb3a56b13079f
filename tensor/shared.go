package tensor

import "sync/atomic"

// refCount is a shared atomic reference counter used by every Shared view
// of the same underlying Tensor.
type refCount struct {
	count int64
}

// Shared is a reference-counted immutable view of a Tensor, matching the
// data model's "shared tensor": once wrapped, the Tensor must not be
// mutated in place unless the holder can prove exclusive ownership (see
// Unwrap).
type Shared struct {
	t    *Tensor
	refs *refCount
}

// NewShared wraps t with an initial reference count of 1.
func NewShared(t *Tensor) *Shared {
	return &Shared{t: t, refs: &refCount{count: 1}}
}

// Clone returns a new Shared view over the same underlying Tensor,
// incrementing the reference count.
func (s *Shared) Clone() *Shared {
	atomic.AddInt64(&s.refs.count, 1)
	return &Shared{t: s.t, refs: s.refs}
}

// Release decrements the reference count. Calling Release more than once on
// the same Shared value is a no-op after the first call.
func (s *Shared) Release() {
	if s.refs == nil {
		return
	}
	atomic.AddInt64(&s.refs.count, -1)
	s.refs = nil
}

// RefCount reports the current number of live references.
func (s *Shared) RefCount() int64 {
	if s.refs == nil {
		return 0
	}
	return atomic.LoadInt64(&s.refs.count)
}

// Unwrap returns the underlying Tensor along with whether the caller holds
// the sole reference. A node that mutates an input is only allowed to do so
// in place when unique is true; otherwise it must copy.
func (s *Shared) Unwrap() (t *Tensor, unique bool) {
	return s.t, s.RefCount() == 1
}
