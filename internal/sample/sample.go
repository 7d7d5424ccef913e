// Package sample converts audio and IQ stream payloads to and from float
// sample frames.
package sample

import (
	"math"

	"example.com/sdrmodel/internal/vita"
)

// pairSize is one big-endian float32 per channel.
const pairSize = 8

// Frame holds two equal length channels: left and right for audio, real
// and imaginary for IQ.
type Frame struct {
	Left  []float32
	Right []float32
	Count int
}

// IQFrame is a Frame tagged with its sample rate.
type IQFrame struct {
	Frame
	SampleRate int
}

// OpusFrame is an opaque compressed payload. The wire carries whole words,
// so Payload and Count include any zero padding the sender added to reach a
// four-byte boundary.
type OpusFrame struct {
	Payload []byte
	Count   int
}

// DecodeFloatPairs fills f from interleaved big-endian IEEE-754 float32
// pairs, multiplying every sample by scale. Trailing bytes that do not form
// a full pair are ignored. f's buffers are reused when large enough.
func DecodeFloatPairs(payload []byte, scale float32, f *Frame) {
	n := len(payload) / pairSize
	f.Left = grow(f.Left, n)
	f.Right = grow(f.Right, n)
	for i := 0; i < n; i++ {
		f.Left[i] = vita.Float32(payload, 2*i) * scale
		f.Right[i] = vita.Float32(payload, 2*i+1) * scale
	}
	f.Count = n
}

// EncodeFloatPairs is the inverse of DecodeFloatPairs for the first n
// samples of left and right. n is clamped to the shorter channel.
func EncodeFloatPairs(left, right []float32, n int, scale float32) []byte {
	if n > len(left) {
		n = len(left)
	}
	if n > len(right) {
		n = len(right)
	}
	if n < 0 {
		n = 0
	}
	out := make([]byte, n*pairSize)
	for i := 0; i < n; i++ {
		vita.PutFloat32(out, 2*i, left[i]*scale)
		vita.PutFloat32(out, 2*i+1, right[i]*scale)
	}
	return out
}

// DecodeOpus copies payload into f.
func DecodeOpus(payload []byte, f *OpusFrame) {
	f.Payload = append(f.Payload[:0], payload...)
	f.Count = len(payload)
}

// EncodeOpus returns the first n bytes of payload as a datagram payload.
func EncodeOpus(payload []byte, n int) []byte {
	if n > len(payload) || n < 0 {
		n = len(payload)
	}
	out := make([]byte, n)
	copy(out, payload[:n])
	return out
}

// GainScalar maps a 0-100 gain control onto a linear multiplier through a
// -10 dB to +10 dB curve. Zero mutes. Values outside the range are clamped.
func GainScalar(gain int) float32 {
	if gain <= 0 {
		return 0
	}
	if gain > 100 {
		gain = 100
	}
	db := -10 + float64(gain)/100*20
	return float32(math.Pow(10, db/20))
}

func grow(s []float32, n int) []float32 {
	if cap(s) < n {
		return make([]float32, n)
	}
	return s[:n]
}
