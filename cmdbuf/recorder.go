package cmdbuf

import (
	"slices"
	"sync"

	"github.com/gogpu/pipe/fence"
)

// Submission is one flushed batch captured by a Recorder.
type Submission struct {
	Words  []uint32
	Relocs []Reloc
	Fence  uint64
}

// Recorder is a Submitter that keeps submitted streams in memory and
// signals fences on a fence.Counter. It is a test and debugging aid that
// stands in for a device queue; no driver submits through it.
type Recorder struct {
	mu          sync.Mutex
	counter     fence.Counter
	submissions []Submission
	keep        int
	auto        bool
	fail        error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithAutoComplete signals each fence as soon as it is submitted.
func WithAutoComplete() RecorderOption {
	return func(r *Recorder) { r.auto = true }
}

// WithHistory keeps at most n submissions; older ones are dropped. Zero
// keeps everything.
func WithHistory(n int) RecorderOption {
	return func(r *Recorder) { r.keep = n }
}

// NewRecorder creates a Recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit copies the stream and returns a fence for it.
func (r *Recorder) Submit(words []uint32, relocs []Reloc) (fence.Fence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fail; err != nil {
		r.fail = nil
		return nil, err
	}
	v := r.counter.Next()
	r.submissions = append(r.submissions, Submission{
		Words:  slices.Clone(words),
		Relocs: slices.Clone(relocs),
		Fence:  v,
	})
	if r.keep > 0 && len(r.submissions) > r.keep {
		r.submissions = slices.Delete(r.submissions, 0, len(r.submissions)-r.keep)
	}
	if r.auto {
		r.counter.Complete(v)
	}
	return r.counter.Fence(v), nil
}

// FailNext makes the next Submit return err.
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Submissions returns the recorded submissions, oldest first.
func (r *Recorder) Submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.submissions)
}

// Complete signals every fence up to v.
func (r *Recorder) Complete(v uint64) { r.counter.Complete(v) }

// CompleteAll signals every submitted fence.
func (r *Recorder) CompleteAll() { r.counter.CompleteAll() }

// Completed returns the highest signaled fence value.
func (r *Recorder) Completed() uint64 { return r.counter.Completed() }
