// Package cmdbuf buffers hardware command words with deferred relocations.
//
// A Batch is a fixed-capacity word buffer. Words are appended only through
// an Emitter obtained from Reserve, so every append is covered by a
// capacity check made up front. Relocations record where a buffer's device
// address must be written; they are resolved when the batch is flushed.
package cmdbuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/internal/logging"
)

// Batch errors.
var (
	// ErrInvalidConfig is returned by New for a bad capacity.
	ErrInvalidConfig = errors.New("cmdbuf: invalid config")

	// ErrNoSpace is returned when a reservation does not fit.
	ErrNoSpace = errors.New("cmdbuf: not enough space in batch")

	// ErrFlushing is returned for operations attempted while a flush is
	// in progress.
	ErrFlushing = errors.New("cmdbuf: batch is flushing")

	// ErrReservationOpen is returned when the previous Emitter has not
	// been closed.
	ErrReservationOpen = errors.New("cmdbuf: reservation still open")

	// ErrReservationClosed is returned when appending through a closed
	// Emitter.
	ErrReservationClosed = errors.New("cmdbuf: reservation closed")

	// ErrOverrun is recorded when an Emitter appends more words or
	// relocations than it reserved.
	ErrOverrun = errors.New("cmdbuf: reservation overrun")

	// ErrPoisoned is returned by Reserve and Flush after an overrun until
	// the batch is Reset.
	ErrPoisoned = errors.New("cmdbuf: batch poisoned")

	// ErrNilSubmitter is returned by New without a submitter.
	ErrNilSubmitter = errors.New("cmdbuf: submitter is nil")
)

// Default sizes used when a Config field is zero.
const (
	DefaultCapacityBytes = 16 << 10
	DefaultMaxRelocs     = 256
)

// Config sizes a Batch.
type Config struct {
	// CapacityBytes is the command space; a positive multiple of 4.
	CapacityBytes int

	// MaxRelocs is the relocation capacity.
	MaxRelocs int
}

// State is the batch lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateWriting
	StateFlushing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateWriting:
		return "Writing"
	case StateFlushing:
		return "Flushing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reloc is a deferred address patch. Word is the index of the command word
// that receives Buffer.Address()+Delta.
type Reloc struct {
	Word   int
	Buffer alloc.Buffer
	Access alloc.Access
	Delta  uint32
}

// Submitter consumes flushed command streams. The slices are only valid
// for the duration of the call.
type Submitter interface {
	Submit(words []uint32, relocs []Reloc) (fence.Fence, error)
}

// Batch accumulates command words for one device.
//
// State machine:
//
//	Empty    -> Reserve      -> Writing
//	Writing  -> Reserve      -> Writing
//	Writing  -> Flush        -> Flushing -> Empty
//
// A Batch is not safe for concurrent use. The owning context serializes
// access.
type Batch struct {
	sub       Submitter
	maxRelocs int
	words     []uint32
	relocs    []Reloc
	state     State
	open      *Emitter
	poison    error
	flushes   uint64
}

// New creates a batch that submits through sub.
func New(cfg Config, sub Submitter) (*Batch, error) {
	if sub == nil {
		return nil, ErrNilSubmitter
	}
	if cfg.CapacityBytes == 0 {
		cfg.CapacityBytes = DefaultCapacityBytes
	}
	if cfg.MaxRelocs == 0 {
		cfg.MaxRelocs = DefaultMaxRelocs
	}
	if cfg.CapacityBytes < 0 || cfg.CapacityBytes%4 != 0 {
		return nil, fmt.Errorf("%w: capacity %d bytes is not a positive multiple of 4", ErrInvalidConfig, cfg.CapacityBytes)
	}
	if cfg.MaxRelocs < 0 {
		return nil, fmt.Errorf("%w: negative relocation capacity %d", ErrInvalidConfig, cfg.MaxRelocs)
	}
	return &Batch{
		sub:       sub,
		maxRelocs: cfg.MaxRelocs,
		words:     make([]uint32, 0, cfg.CapacityBytes/4),
		relocs:    make([]Reloc, 0, cfg.MaxRelocs),
	}, nil
}

// State returns the lifecycle state.
func (b *Batch) State() State { return b.state }

// Len returns the number of words written.
func (b *Batch) Len() int { return len(b.words) }

// Relocs returns the number of pending relocations.
func (b *Batch) Relocs() int { return len(b.relocs) }

// RemainingBytes returns the unused command space.
func (b *Batch) RemainingBytes() int { return (cap(b.words) - len(b.words)) * 4 }

// CapacityBytes returns the command space.
func (b *Batch) CapacityBytes() int { return cap(b.words) * 4 }

// Flushes returns how many non-empty flushes were submitted.
func (b *Batch) Flushes() uint64 { return b.flushes }

// HasSpace reports whether nWords words and nRelocs relocations fit.
func (b *Batch) HasSpace(nWords, nRelocs int) bool {
	return nWords >= 0 && nRelocs >= 0 &&
		len(b.words)+nWords <= cap(b.words) &&
		len(b.relocs)+nRelocs <= b.maxRelocs
}

// Reserve opens a reservation for up to nWords words, of which nRelocs may
// be relocations. Only one reservation may be open at a time.
func (b *Batch) Reserve(nWords, nRelocs int) (*Emitter, error) {
	switch {
	case b.state == StateFlushing:
		return nil, ErrFlushing
	case b.open != nil:
		return nil, ErrReservationOpen
	case b.poison != nil:
		return nil, fmt.Errorf("%w: %w", ErrPoisoned, b.poison)
	case nRelocs > nWords:
		return nil, fmt.Errorf("%w: %d relocations need %d words", ErrNoSpace, nRelocs, nRelocs)
	case !b.HasSpace(nWords, nRelocs):
		return nil, fmt.Errorf("%w: need %d words and %d relocations, have %d and %d",
			ErrNoSpace, nWords, nRelocs, cap(b.words)-len(b.words), b.maxRelocs-len(b.relocs))
	}
	e := &Emitter{batch: b, words: nWords, relocs: nRelocs}
	b.open = e
	b.state = StateWriting
	return e, nil
}

// ReserveOrFlush reserves space, flushing the batch first when the request
// does not fit. ErrNoSpace is returned only when the request exceeds an
// empty batch.
func (b *Batch) ReserveOrFlush(nWords, nRelocs int) (*Emitter, error) {
	if b.state != StateFlushing && b.open == nil && b.poison == nil && !b.HasSpace(nWords, nRelocs) && len(b.words) > 0 {
		if _, err := b.Flush(); err != nil {
			return nil, err
		}
	}
	return b.Reserve(nWords, nRelocs)
}

// Flush patches relocations, submits the words and resets the batch. Every
// relocated buffer is fenced with the returned fence. An empty batch
// returns a signaled fence without calling the submitter.
//
// If the submitter fails the batch contents are dropped and the error is
// returned.
func (b *Batch) Flush() (fence.Fence, error) {
	switch {
	case b.state == StateFlushing:
		return nil, ErrFlushing
	case b.open != nil:
		return nil, ErrReservationOpen
	case b.poison != nil:
		return nil, fmt.Errorf("%w: %w", ErrPoisoned, b.poison)
	}
	if len(b.words) == 0 {
		b.state = StateEmpty
		return fence.Done(), nil
	}

	b.state = StateFlushing
	defer b.reset()

	for _, r := range b.relocs {
		b.words[r.Word] = uint32(r.Buffer.Address() + uint64(r.Delta))
	}
	f, err := b.sub.Submit(b.words, b.relocs)
	if err != nil {
		return nil, fmt.Errorf("cmdbuf: submit: %w", err)
	}
	for _, r := range b.relocs {
		r.Buffer.Fence(f)
	}
	b.flushes++
	logging.Logger().Debug("cmdbuf: flushed batch",
		"words", len(b.words), "relocs", len(b.relocs), "flushes", b.flushes)
	return f, nil
}

// Reset discards the batch contents and clears a poisoned state. Open
// reservations are invalidated.
func (b *Batch) Reset() error {
	if b.state == StateFlushing {
		return ErrFlushing
	}
	if b.open != nil {
		b.open.closed = true
	}
	b.reset()
	return nil
}

func (b *Batch) reset() {
	clear(b.relocs)
	b.words = b.words[:0]
	b.relocs = b.relocs[:0]
	b.open = nil
	b.poison = nil
	b.state = StateEmpty
}

// Emitter appends into the space granted by one reservation.
type Emitter struct {
	batch  *Batch
	words  int
	relocs int
	closed bool
	err    error
}

func (e *Emitter) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	if !e.closed && e.batch.poison == nil {
		e.batch.poison = err
	}
}

func (e *Emitter) take(relocs int) bool {
	switch {
	case e.closed:
		if e.err == nil {
			e.err = ErrReservationClosed
		}
		return false
	case e.words < 1 || e.relocs < relocs:
		e.fail(ErrOverrun)
		return false
	}
	e.words--
	e.relocs -= relocs
	return true
}

// Word appends one command word.
func (e *Emitter) Word(w uint32) {
	if e.take(0) {
		e.batch.words = append(e.batch.words, w)
	}
}

// Words appends several command words.
func (e *Emitter) Words(ws ...uint32) {
	for _, w := range ws {
		e.Word(w)
	}
}

// Float appends the IEEE-754 bits of f.
func (e *Emitter) Float(f float32) { e.Word(math.Float32bits(f)) }

// Reloc appends a placeholder word that receives buf.Address()+delta when
// the batch is flushed.
func (e *Emitter) Reloc(buf alloc.Buffer, access alloc.Access, delta uint32) {
	if !e.take(1) {
		return
	}
	b := e.batch
	b.relocs = append(b.relocs, Reloc{Word: len(b.words), Buffer: buf, Access: access, Delta: delta})
	b.words = append(b.words, 0)
}

// Remaining returns the unused words of the reservation.
func (e *Emitter) Remaining() int { return e.words }

// Err returns the first error recorded by the emitter.
func (e *Emitter) Err() error { return e.err }

// Close ends the reservation and returns the first error recorded while
// appending. Closing twice is a no-op.
func (e *Emitter) Close() error {
	if !e.closed {
		e.closed = true
		if e.batch.open == e {
			e.batch.open = nil
		}
	}
	return e.err
}
