package audioio

import (
	"testing"
	"time"
)

func loudChunk(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return samples
}

func testGate() *Gate {
	cfg := DefaultGateConfig(16000)
	cfg.SilenceDuration = 100 * time.Millisecond
	cfg.MinUtterance = 50 * time.Millisecond
	return NewGate(cfg)
}

func TestGateSilenceOnlyNeverFires(t *testing.T) {
	g := testGate()

	for i := 0; i < 50; i++ {
		if _, done := g.Feed(make([]int16, 320)); done {
			t.Fatal("gate fired on pure silence")
		}
	}
	if g.Speaking() {
		t.Error("gate thinks silence is speech")
	}
}

func TestGateClosesAfterPause(t *testing.T) {
	g := testGate()

	// 200ms of speech at 16kHz, fed in 20ms chunks.
	for i := 0; i < 10; i++ {
		if _, done := g.Feed(loudChunk(320)); done {
			t.Fatal("gate fired mid-speech")
		}
	}
	if !g.Speaking() {
		t.Fatal("gate did not detect speech")
	}

	// 100ms of silence closes the utterance.
	var utt []int16
	done := false
	for i := 0; i < 5 && !done; i++ {
		utt, done = g.Feed(make([]int16, 320))
	}
	if !done {
		t.Fatal("gate never closed the utterance")
	}

	// Speech plus trailing silence.
	if len(utt) < 10*320 {
		t.Errorf("utterance too short: %d samples", len(utt))
	}
	if g.Speaking() {
		t.Error("gate not reset after utterance")
	}
}

func TestGateDiscardsBlips(t *testing.T) {
	g := testGate()

	// 20ms blip, well under the 50ms minimum.
	g.Feed(loudChunk(320))

	done := false
	for i := 0; i < 10 && !done; i++ {
		_, done = g.Feed(make([]int16, 320))
	}
	if done {
		t.Error("gate emitted a sub-minimum blip")
	}
}

func TestGateReset(t *testing.T) {
	g := testGate()
	g.Feed(loudChunk(320))
	g.Reset()

	if g.Speaking() {
		t.Error("Reset did not clear speaking state")
	}
}
