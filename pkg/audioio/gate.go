package audioio

import "time"

// Gate segments a continuous sample stream into utterances using a
// reply-on-pause rule: speech starts when chunk energy crosses the
// threshold and ends after a sustained stretch of silence.
type Gate struct {
	threshold   float64
	sampleRate  int
	silenceLen  int // samples of silence that close an utterance
	minUttLen   int // utterances shorter than this are discarded
	maxUttLen   int // hard cap to bound memory on a stuck-open mic

	speaking      bool
	silentSamples int
	buf           []int16
}

// GateConfig holds utterance gate tuning.
type GateConfig struct {
	// Threshold is the normalized RMS level that counts as speech.
	Threshold float64

	// SilenceDuration of sub-threshold audio that ends an utterance.
	SilenceDuration time.Duration

	// MinUtterance discards blips shorter than this.
	MinUtterance time.Duration

	// MaxUtterance force-closes an utterance at this length.
	MaxUtterance time.Duration

	// SampleRate of the incoming audio.
	SampleRate int
}

// DefaultGateConfig returns tuning that works for near-field speech.
func DefaultGateConfig(sampleRate int) GateConfig {
	return GateConfig{
		Threshold:       0.0005,
		SilenceDuration: 700 * time.Millisecond,
		MinUtterance:    250 * time.Millisecond,
		MaxUtterance:    30 * time.Second,
		SampleRate:      sampleRate,
	}
}

// NewGate creates an utterance gate.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		threshold:  cfg.Threshold,
		sampleRate: cfg.SampleRate,
		silenceLen: int(float64(cfg.SampleRate) * cfg.SilenceDuration.Seconds()),
		minUttLen:  int(float64(cfg.SampleRate) * cfg.MinUtterance.Seconds()),
		maxUttLen:  int(float64(cfg.SampleRate) * cfg.MaxUtterance.Seconds()),
	}
}

// Feed consumes one chunk of mono samples. When a pause closes an
// utterance, the buffered samples are returned with done=true; otherwise
// done is false and the returned slice is nil.
func (g *Gate) Feed(samples []int16) (utterance []int16, done bool) {
	rms := CalculateRMS(samples)

	if rms >= g.threshold {
		g.speaking = true
		g.silentSamples = 0
		g.buf = append(g.buf, samples...)
		if len(g.buf) >= g.maxUttLen {
			return g.flush()
		}
		return nil, false
	}

	if !g.speaking {
		return nil, false
	}

	// Trailing silence is kept so the transcript gets natural endings.
	g.buf = append(g.buf, samples...)
	g.silentSamples += len(samples)

	if g.silentSamples >= g.silenceLen {
		return g.flush()
	}
	return nil, false
}

// Speaking reports whether the gate is inside an utterance.
func (g *Gate) Speaking() bool {
	return g.speaking
}

// Reset discards any buffered audio.
func (g *Gate) Reset() {
	g.speaking = false
	g.silentSamples = 0
	g.buf = nil
}

func (g *Gate) flush() ([]int16, bool) {
	utt := g.buf
	g.Reset()
	if len(utt) < g.minUttLen {
		return nil, false
	}
	return utt, true
}
