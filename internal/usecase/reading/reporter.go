package reading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ananse-reader/internal/domain"
)

// DefaultDebounce is the quiet period before a progress write is sent.
const DefaultDebounce = 2 * time.Second

// ProgressSender persists a reading position.
type ProgressSender interface {
	SaveProgress(ctx context.Context, chapterID string, scrollPosition float64) (domain.ReadingProgress, error)
}

type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type pendingWrite struct {
	chapterID string
	position  float64
}

// ProgressReporter debounces scroll updates so only the last value of a burst is sent.
type ProgressReporter struct {
	sender        ProgressSender
	authenticated func() bool
	delay         time.Duration
	sendTimeout   time.Duration
	schedule      scheduleFunc
	log           zerolog.Logger

	mu      sync.Mutex
	pending *pendingWrite
	stop    func() bool
	gen     uint64
	closed  bool
}

type ReporterOption func(*ProgressReporter)

func WithDebounce(d time.Duration) ReporterOption {
	return func(r *ProgressReporter) {
		if d > 0 {
			r.delay = d
		}
	}
}

func WithReporterLogger(log zerolog.Logger) ReporterOption {
	return func(r *ProgressReporter) { r.log = log }
}

func withScheduler(s scheduleFunc) ReporterOption {
	return func(r *ProgressReporter) { r.schedule = s }
}

// NewProgressReporter builds a reporter. authenticated is consulted on every
// report; anonymous readers never send anything.
func NewProgressReporter(sender ProgressSender, authenticated func() bool, opts ...ReporterOption) *ProgressReporter {
	r := &ProgressReporter{
		sender:        sender,
		authenticated: authenticated,
		delay:         DefaultDebounce,
		sendTimeout:   10 * time.Second,
		schedule:      afterFunc,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records the latest position. Moving to another chapter sends the
// pending position of the previous one first.
func (r *ProgressReporter) Report(chapterID string, position float64) {
	if r.authenticated == nil || !r.authenticated() {
		return
	}
	position = domain.ClampFraction(position)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var previous *pendingWrite
	if r.pending != nil && r.pending.chapterID != chapterID {
		previous = r.pending
	}
	r.pending = &pendingWrite{chapterID: chapterID, position: position}
	if r.stop != nil {
		r.stop()
	}
	r.gen++
	gen := r.gen
	r.stop = r.schedule(r.delay, func() { r.fire(gen) })
	r.mu.Unlock()

	if previous != nil {
		r.send(context.Background(), *previous)
	}
}

// Flush sends the pending position immediately, if any.
func (r *ProgressReporter) Flush(ctx context.Context) error {
	w := r.take()
	if w == nil {
		return nil
	}
	return r.send(ctx, *w)
}

// Close flushes and stops accepting reports.
func (r *ProgressReporter) Close(ctx context.Context) error {
	err := r.Flush(ctx)
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return err
}

// fire runs when the quiet period of report gen ends. A timer that was
// already running when a newer report arrived finds a newer gen and does nothing.
func (r *ProgressReporter) fire(gen uint64) {
	r.mu.Lock()
	var w *pendingWrite
	if r.gen == gen {
		w = r.takeLocked()
	}
	r.mu.Unlock()
	if w == nil {
		return
	}
	_ = r.send(context.Background(), *w)
}

func (r *ProgressReporter) take() *pendingWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takeLocked()
}

func (r *ProgressReporter) takeLocked() *pendingWrite {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
	w := r.pending
	r.pending = nil
	return w
}

func (r *ProgressReporter) send(ctx context.Context, w pendingWrite) error {
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if _, err := r.sender.SaveProgress(ctx, w.chapterID, w.position); err != nil {
		r.log.Warn().Err(err).Str("chapter_id", w.chapterID).Float64("position", w.position).Msg("progress report failed")
		return err
	}
	r.log.Debug().Str("chapter_id", w.chapterID).Float64("position", w.position).Msg("progress reported")
	return nil
}
