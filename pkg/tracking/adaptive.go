package tracking

import (
	"sync"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Factory builds a variant. Tests inject fakes; production uses New.
type Factory func(kind Kind, cfg Config) (Tracker, error)

// Adaptive is the session tracker. It runs one variant at a time and, when
// confidence stays below ConfidenceFloor for SwapAfter (measured on frame
// capture times), re-seeds the next variant from the last good box.
//
// Swapping only changes the algorithm; deciding that the target is lost is
// left to the caller.
type Adaptive struct {
	cfg     Config
	factory Factory

	mu       sync.Mutex
	kind     Kind
	cur      Tracker
	lastGood vision.BoundingBox
	weakFrom time.Time
	swaps    int
}

// NewAdaptive creates a tracker starting with cfg.Kind. A nil factory uses New.
func NewAdaptive(cfg Config, factory Factory) *Adaptive {
	if factory == nil {
		factory = New
	}
	kind := cfg.Kind
	if kind == "" {
		kind = KindCorrelation
	}
	return &Adaptive{cfg: cfg, factory: factory, kind: kind}
}

// Init (re)starts tracking with the configured initial variant.
func (a *Adaptive) Init(frame vision.Frame, box vision.BoundingBox) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closeCurrent()
	a.kind = a.cfg.Kind
	if a.kind == "" {
		a.kind = KindCorrelation
	}

	t, err := a.factory(a.kind, a.cfg)
	if err != nil {
		return newError("init", a.kind, err)
	}
	if err := t.Init(frame, box); err != nil {
		t.Close()
		return err
	}
	a.cur = t
	a.lastGood = box
	a.weakFrom = time.Time{}
	return nil
}

// Update runs the active variant and swaps it if it has been weak too long.
func (a *Adaptive) Update(frame vision.Frame) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cur == nil {
		return Result{}, newError("update", a.kind, ErrNotInitialized)
	}

	res, err := a.cur.Update(frame)
	if err == nil && res.Found && res.Confidence >= a.cfg.ConfidenceFloor {
		a.lastGood = res.Box
		a.weakFrom = time.Time{}
		return res, nil
	}

	if a.weakFrom.IsZero() {
		a.weakFrom = frame.Captured
	} else if frame.Captured.Sub(a.weakFrom) >= a.cfg.SwapAfter {
		a.swap(frame)
	}
	return res, err
}

// swap replaces the active variant. If the next variant cannot be seeded
// the current one stays and the weak timer restarts.
func (a *Adaptive) swap(frame vision.Frame) {
	to := next(a.kind)
	a.weakFrom = frame.Captured

	t, err := a.factory(to, a.cfg)
	if err != nil {
		log.Warn("tracker swap failed", "from", a.kind, "to", to, "error", err)
		return
	}
	if err := t.Init(frame, a.lastGood); err != nil {
		t.Close()
		log.Warn("tracker swap failed", "from", a.kind, "to", to, "error", err)
		return
	}

	log.Info("tracker swapped", "from", a.kind, "to", to)
	a.closeCurrent()
	a.cur = t
	a.kind = to
	a.swaps++
}

// Kind returns the active variant.
func (a *Adaptive) Kind() Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.kind
}

// Swaps returns how many times the variant was swapped since creation.
func (a *Adaptive) Swaps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.swaps
}

// Close releases the active variant.
func (a *Adaptive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeCurrent()
}

func (a *Adaptive) closeCurrent() error {
	if a.cur == nil {
		return nil
	}
	err := a.cur.Close()
	a.cur = nil
	return err
}

var _ Tracker = (*Adaptive)(nil)
