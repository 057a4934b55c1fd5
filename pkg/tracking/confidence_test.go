package tracking

import (
	"testing"
	"time"

	"github.com/teslashibe/go-borg/pkg/vision"
)

func evidence(native float64, features int) Evidence {
	box := vision.BoundingBox{X: 100, Y: 100, Width: 50, Height: 80}
	return Evidence{
		Native:   native,
		Features: features,
		Box:      box,
		Prev:     box,
		Elapsed:  33 * time.Millisecond,
		Width:    640,
		Height:   480,
	}
}

func TestScore_Range(t *testing.T) {
	cfg := DefaultScoreConfig()
	for _, native := range []float64{-1, 0, 0.3, 0.99, 1, 5} {
		for _, features := range []int{0, 5, 20, 500} {
			got := Score(cfg, evidence(native, features))
			if got < 0 || got > 1 {
				t.Errorf("Score(native=%v, features=%d) = %v, out of [0,1]", native, features, got)
			}
		}
	}
}

func TestScore_StrongEvidenceIsConfident(t *testing.T) {
	got := Score(DefaultScoreConfig(), evidence(0.95, 40))
	if got < 0.9 {
		t.Errorf("expected high confidence, got %v", got)
	}
}

func TestScore_MonotonicInNative(t *testing.T) {
	cfg := DefaultScoreConfig()
	prev := -1.0
	for native := 0.0; native <= 1.0; native += 0.1 {
		got := Score(cfg, evidence(native, 10))
		if got < prev {
			t.Fatalf("confidence dropped from %v to %v at native=%v", prev, got, native)
		}
		prev = got
	}
}

func TestScore_SizeJumpForcesLowConfidence(t *testing.T) {
	cfg := DefaultScoreConfig()
	ev := evidence(1.0, 50)
	ev.Box.Height = ev.Prev.Height * 1.6 // 60% larger

	got := Score(cfg, ev)
	if got > cfg.OcclusionCap {
		t.Errorf("size jump: got %v, want <= %v", got, cfg.OcclusionCap)
	}

	// Shrinking counts as well.
	ev.Box.Height = ev.Prev.Height * 0.4
	if got := Score(cfg, ev); got > cfg.OcclusionCap {
		t.Errorf("size drop: got %v, want <= %v", got, cfg.OcclusionCap)
	}
}

func TestScore_ModerateSizeChangeAllowed(t *testing.T) {
	cfg := DefaultScoreConfig()
	ev := evidence(1.0, 50)
	ev.Box.Height = ev.Prev.Height * 1.3

	if got := Score(cfg, ev); got < 0.9 {
		t.Errorf("30%% growth should keep confidence, got %v", got)
	}
}

func TestScore_ImplausibleMotion(t *testing.T) {
	cfg := DefaultScoreConfig()

	slow := evidence(0.9, 20)
	slow.Box.X += 5

	fast := evidence(0.9, 20)
	fast.Box.X += 500
	fast.Elapsed = 10 * time.Millisecond

	if Score(cfg, fast) >= Score(cfg, slow) {
		t.Error("a large jump in a short time should score lower than a small move")
	}
}

func TestScore_InvalidBox(t *testing.T) {
	ev := evidence(1, 50)
	ev.Box = vision.BoundingBox{}
	if got := Score(DefaultScoreConfig(), ev); got != 0 {
		t.Errorf("invalid box: got %v, want 0", got)
	}
}
