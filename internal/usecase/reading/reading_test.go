package reading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ananse-reader/internal/domain"
)

func TestScrollFraction(t *testing.T) {
	tests := []struct {
		offset, doc, viewport float64
		want                  float64
	}{
		{offset: 0, doc: 2000, viewport: 1000, want: 0},
		{offset: 500, doc: 2000, viewport: 1000, want: 0.5},
		{offset: 1000, doc: 2000, viewport: 1000, want: 1},
		{offset: 1500, doc: 2000, viewport: 1000, want: 1},
		{offset: -20, doc: 2000, viewport: 1000, want: 0},
		{offset: 100, doc: 800, viewport: 1000, want: 0},
	}
	for _, tt := range tests {
		if got := ScrollFraction(tt.offset, tt.doc, tt.viewport); got != tt.want {
			t.Fatalf("ScrollFraction(%v, %v, %v) = %v, want %v", tt.offset, tt.doc, tt.viewport, got, tt.want)
		}
	}
	if got := PageFraction(2, 4); got != 0.5 {
		t.Fatalf("PageFraction(2, 4) = %v", got)
	}
}

func TestNeighbors(t *testing.T) {
	list := []domain.Chapter{
		{ID: "c", Order: 3},
		{ID: "a", Order: 1},
		{ID: "b", Order: 2},
	}
	prev, next := Neighbors(list, "b")
	if prev == nil || prev.ID != "a" || next == nil || next.ID != "c" {
		t.Fatalf("unexpected neighbors of b: %v %v", prev, next)
	}
	prev, next = Neighbors(list, "a")
	if prev != nil || next == nil || next.ID != "b" {
		t.Fatalf("unexpected neighbors of a: %v %v", prev, next)
	}
	prev, next = Neighbors(list, "c")
	if prev == nil || prev.ID != "b" || next != nil {
		t.Fatalf("unexpected neighbors of c: %v %v", prev, next)
	}
	if prev, next := Neighbors(list, "zz"); prev != nil || next != nil {
		t.Fatalf("unknown chapter should have no neighbors")
	}
}

type sentWrite struct {
	chapterID string
	position  float64
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentWrite
	err  error
}

func (s *recordingSender) SaveProgress(_ context.Context, chapterID string, pos float64) (domain.ReadingProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentWrite{chapterID, pos})
	return domain.ReadingProgress{ChapterID: chapterID, ScrollPosition: pos}, s.err
}

func (s *recordingSender) writes() []sentWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentWrite(nil), s.sent...)
}

// manualTimer replaces time.AfterFunc; fire runs the latest scheduled callback.
type manualTimer struct {
	mu     sync.Mutex
	f      func()
	active bool
	delays []time.Duration
}

func (m *manualTimer) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.f, m.active = f, true
	m.delays = append(m.delays, d)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := m.active
		m.active = false
		return was
	}
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	f, active := m.f, m.active
	m.active = false
	m.mu.Unlock()
	if active {
		f()
	}
}

func TestReporterSendsLastValueOfBurst(t *testing.T) {
	sender := &recordingSender{}
	timer := &manualTimer{}
	r := NewProgressReporter(sender, func() bool { return true }, withScheduler(timer.schedule))

	for _, pos := range []float64{0.1, 0.2, 0.3, 0.45} {
		r.Report("ch-1", pos)
	}
	if got := sender.writes(); len(got) != 0 {
		t.Fatalf("nothing should be sent before the quiet period, got %v", got)
	}
	timer.fire()
	got := sender.writes()
	if len(got) != 1 || got[0] != (sentWrite{"ch-1", 0.45}) {
		t.Fatalf("expected only the last value, got %v", got)
	}
	if timer.delays[0] != DefaultDebounce {
		t.Fatalf("unexpected debounce %v", timer.delays[0])
	}
	timer.fire()
	if len(sender.writes()) != 1 {
		t.Fatalf("a fired timer must not resend")
	}
}

func TestReporterIgnoresTimerOvertakenByNewerReport(t *testing.T) {
	sender := &recordingSender{}
	var callbacks []func()
	// Stopping never wins here, as when the timer goroutine has already started.
	late := func(_ time.Duration, f func()) func() bool {
		callbacks = append(callbacks, f)
		return func() bool { return false }
	}
	r := NewProgressReporter(sender, func() bool { return true }, withScheduler(late))

	r.Report("ch-1", 0.1)
	r.Report("ch-1", 0.2)
	callbacks[0]()
	if got := sender.writes(); len(got) != 0 {
		t.Fatalf("stale timer sent before the quiet period ended: %v", got)
	}
	callbacks[1]()
	if got := sender.writes(); len(got) != 1 || got[0] != (sentWrite{"ch-1", 0.2}) {
		t.Fatalf("expected the newest value once, got %v", got)
	}
}

func TestReporterAnonymousSendsNothing(t *testing.T) {
	sender := &recordingSender{}
	timer := &manualTimer{}
	r := NewProgressReporter(sender, func() bool { return false }, withScheduler(timer.schedule))
	r.Report("ch-1", 0.5)
	timer.fire()
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := sender.writes(); len(got) != 0 {
		t.Fatalf("anonymous reader sent progress: %v", got)
	}
}

func TestReporterFlushAndClose(t *testing.T) {
	sender := &recordingSender{}
	timer := &manualTimer{}
	r := NewProgressReporter(sender, func() bool { return true }, withScheduler(timer.schedule))

	r.Report("ch-1", 0.7)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	timer.fire()
	if got := sender.writes(); len(got) != 1 || got[0].position != 0.7 {
		t.Fatalf("unexpected writes after flush: %v", got)
	}

	r.Report("ch-1", 0.96)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	r.Report("ch-1", 0.1)
	timer.fire()
	got := sender.writes()
	if len(got) != 2 || got[1].position != 0.96 {
		t.Fatalf("unexpected writes after close: %v", got)
	}
}

func TestReporterChapterSwitchSendsPrevious(t *testing.T) {
	sender := &recordingSender{}
	timer := &manualTimer{}
	r := NewProgressReporter(sender, func() bool { return true }, withScheduler(timer.schedule))

	r.Report("ch-1", 0.99)
	r.Report("ch-2", 0.05)
	timer.fire()
	got := sender.writes()
	want := []sentWrite{{"ch-1", 0.99}, {"ch-2", 0.05}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReporterFlushReturnsSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("offline")}
	r := NewProgressReporter(sender, func() bool { return true }, withScheduler((&manualTimer{}).schedule))
	r.Report("ch-1", 0.3)
	if err := r.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush to surface the send error")
	}
}

func TestPreferencesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	store := NewPreferencesStore(path)

	p, err := store.Load()
	if err != nil || p != DefaultPreferences() {
		t.Fatalf("missing file: got %+v %v", p, err)
	}
	want := Preferences{Theme: ThemeSepia, FontSize: 130}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load()
	if err != nil || got != want {
		t.Fatalf("round trip: got %+v %v", got, err)
	}
	if err := store.Save(Preferences{Theme: ThemeDark, FontSize: 250}); err == nil {
		t.Fatalf("expected out-of-range font size to be rejected")
	}
	if err := store.Save(Preferences{Theme: "neon", FontSize: 100}); err == nil {
		t.Fatalf("expected unknown theme to be rejected")
	}

	if err := os.WriteFile(path, []byte(`{"theme":"neon","fontSize":20}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = store.Load()
	if err == nil || got != DefaultPreferences() {
		t.Fatalf("invalid file: got %+v %v", got, err)
	}
}
