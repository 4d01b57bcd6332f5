// Package audio holds the PCM primitives shared by the capture, segmentation
// and playback stages of docent.
//
// The main types are:
//
//   - [Frame]: one fixed-size block of mono int16 samples as delivered by a
//     single capture callback.
//   - [Utterance]: the ordered frames of one speech episode.
//   - [Queue]: the bounded hand-off queue between the capture goroutine and
//     the segmenter.
//
// All PCM in docent is mono, signed 16-bit. When serialised to bytes it is
// little-endian.
package audio

import "time"

// Frame is a fixed-length block of mono int16 samples. A Frame is never
// modified after the capture stage hands it to the [Queue].
type Frame struct {
	// Samples holds the PCM samples of this block.
	Samples []int16

	// Seq is the per-ingestor sequence number. It increases by one for every
	// block read from the device, including blocks later dropped by the queue,
	// so gaps in Seq reveal drops.
	Seq uint64

	// Arrived is the wall-clock time the block was read from the device.
	Arrived time.Time
}

// MeanAbs returns the mean absolute amplitude of the frame's samples.
func (f Frame) MeanAbs() float64 {
	return MeanAbs(f.Samples)
}

// Utterance is the ordered, append-only sequence of frames captured during a
// single speech episode. The segmenter owns an Utterance until it is
// finalized; afterwards the receiver owns it exclusively.
type Utterance struct {
	// Frames are the captured frames in arrival order.
	Frames []Frame

	// SampleRate is the sample rate of every frame in Hz.
	SampleRate int
}

// NewUtterance starts an utterance seeded with its onset frame.
func NewUtterance(sampleRate int, onset Frame) *Utterance {
	return &Utterance{
		Frames:     []Frame{onset},
		SampleRate: sampleRate,
	}
}

// Append adds f to the end of the utterance.
func (u *Utterance) Append(f Frame) {
	u.Frames = append(u.Frames, f)
}

// Len returns the number of frames.
func (u *Utterance) Len() int {
	if u == nil {
		return 0
	}
	return len(u.Frames)
}

// NumSamples returns the total number of samples across all frames.
func (u *Utterance) NumSamples() int {
	if u == nil {
		return 0
	}
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	return n
}

// Empty reports whether u is nil or carries no samples at all.
func (u *Utterance) Empty() bool {
	return u.NumSamples() == 0
}

// Samples concatenates the samples of all frames into one slice.
func (u *Utterance) Samples() []int16 {
	out := make([]int16, 0, u.NumSamples())
	if u == nil {
		return out
	}
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Duration returns the playback length of the utterance.
func (u *Utterance) Duration() time.Duration {
	if u == nil {
		return 0
	}
	return samplesDuration(u.NumSamples(), u.SampleRate)
}

func samplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// PCM returns the concatenated samples as little-endian bytes.
func (u *Utterance) PCM() []byte {
	return Int16ToBytes(u.Samples())
}
