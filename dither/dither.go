// Package dither generates triangular-probability-density (TPDF) noise
// for decorrelating quantization error when the render callback reduces
// bit depth. Dither is only ever added when the output depth is strictly
// less than the source depth; a native-depth device gets a bit-perfect
// path with no dither at all.
package dither

// State is a batched TPDF noise generator driven by xorshift32. It is
// callback-owned: NextTPDF and FillBatch allocate nothing and never
// block, safe to call from a realtime render callback.
type State struct {
	seed uint32
}

// New creates a dither generator seeded with seed. A zero seed is
// replaced with a fixed non-zero constant, since xorshift32 cannot
// recover from an all-zero state.
func New(seed uint32) *State {
	if seed == 0 {
		seed = 0xCAFEBABE
	}

	return &State{seed: seed}
}

// NextU32 advances the xorshift32 generator and returns the next value.
func (s *State) NextU32() uint32 {
	x := s.seed
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.seed = x

	return x
}

// NextTPDF returns one triangular-distributed sample in roughly [-1, 1),
// formed by summing two independent uniform draws — the standard TPDF
// construction (sum of two uniforms has a triangular distribution).
func (s *State) NextTPDF() float32 {
	r1 := float32(s.NextU32()&0xFF) / 255.0
	r2 := float32(s.NextU32()&0xFF) / 255.0

	return r1 + r2 - 1.0
}

// FillBatch fills output with consecutive TPDF samples. Batching the
// generation lets the render callback's SIMD-friendly conversion loop
// run uninterrupted by PRNG state updates.
func (s *State) FillBatch(output []float32) {
	for i := range output {
		output[i] = s.NextTPDF()
	}
}

// Int24TPDF returns a TPDF dither value already scaled and shaped for
// adding to a left-aligned Int32 sample before truncating to 24 bits: the
// sum of two independent byte-range draws, centered at zero so it spans
// the low byte that Int24 packing discards (about ±1 LSB of the 24-bit
// result).
func (s *State) Int24TPDF() int32 {
	r1 := int32(s.NextU32() & 0xFF)
	r2 := int32(s.NextU32() & 0xFF)

	return r1 + r2 - 256
}
