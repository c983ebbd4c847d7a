package rtc

// frameDurationMs is the opus frame length used for the outbound track.
const frameDurationMs = 20

// frameBuffer slices an arbitrary PCM sample stream into fixed 20ms
// frames for the opus encoder. Leftover samples wait for the next push.
type frameBuffer struct {
	frameLen int
	buf      []int16
}

func newFrameBuffer(sampleRate int) *frameBuffer {
	return &frameBuffer{
		frameLen: sampleRate * frameDurationMs / 1000,
	}
}

// Push appends samples and returns every complete frame now available.
func (f *frameBuffer) Push(samples []int16) [][]int16 {
	f.buf = append(f.buf, samples...)

	var frames [][]int16
	for len(f.buf) >= f.frameLen {
		frame := make([]int16, f.frameLen)
		copy(frame, f.buf[:f.frameLen])
		frames = append(frames, frame)
		f.buf = f.buf[f.frameLen:]
	}
	return frames
}

// Flush returns the remaining partial frame padded with silence, or nil
// if the buffer is empty. Used at end of turn so the tail is not lost.
func (f *frameBuffer) Flush() []int16 {
	if len(f.buf) == 0 {
		return nil
	}
	frame := make([]int16, f.frameLen)
	copy(frame, f.buf)
	f.buf = f.buf[:0]
	return frame
}
