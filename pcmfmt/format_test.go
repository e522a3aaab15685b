package pcmfmt

import (
	"math"
	"testing"
)

// TestSignExtension24Bit covers spec property 4: raw 24-bit bytes must
// decode to the correctly signed left-aligned Int32.
func TestSignExtension24Bit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  [3]byte
		want int32
	}{
		{"min negative", [3]byte{0x00, 0x00, 0x80}, int32(-0x800000) << 8},
		{"minus one", [3]byte{0xFF, 0xFF, 0xFF}, int32(-1) << 8},
		{"zero", [3]byte{0x00, 0x00, 0x00}, 0},
		{"max positive", [3]byte{0xFF, 0xFF, 0x7F}, int32(0x7FFFFF) << 8},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := make([]int32, 1)

			n, err := DecodeBytes(tc.raw[:], 24, out)
			if err != nil {
				t.Fatalf("DecodeBytes: %v", err)
			}

			if n != 1 {
				t.Fatalf("n = %d, want 1", n)
			}

			if out[0] != tc.want {
				t.Fatalf("got %d, want %d", out[0], tc.want)
			}
		})
	}
}

// TestRoundTrip covers spec property 3: for every supported bit depth,
// encode(decode(encode(v))) == encode(v).
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{16, 24, 32} {
		bits := bits
		t.Run(depthName(bits), func(t *testing.T) {
			t.Parallel()

			for _, v := range representativeSamples(bits) {
				bytesPerSample := bytesPerSampleFor(bits)
				original := make([]byte, bytesPerSample)

				if _, err := EncodeBytes([]int32{v}, bits, original); err != nil {
					t.Fatalf("EncodeBytes: %v", err)
				}

				decoded := make([]int32, 1)
				if _, err := DecodeBytes(original, bits, decoded); err != nil {
					t.Fatalf("DecodeBytes: %v", err)
				}

				reencoded := make([]byte, bytesPerSample)
				if _, err := EncodeBytes(decoded, bits, reencoded); err != nil {
					t.Fatalf("EncodeBytes (2nd): %v", err)
				}

				for i := range original {
					if original[i] != reencoded[i] {
						t.Fatalf("round trip mismatch for v=%d bits=%d: %v != %v", v, bits, original, reencoded)
					}
				}
			}
		})
	}
}

func depthName(bits int) string {
	switch bits {
	case 16:
		return "16bit"
	case 24:
		return "24bit"
	case 32:
		return "32bit"
	default:
		return "unknown"
	}
}

// representativeSamples returns a set of left-aligned Int32 values whose
// low bits are zeroed to whatever a source of this depth can actually
// produce, since only those values are in EncodeBytes's image.
func representativeSamples(bits int) []int32 {
	shift := uint(32 - bits)
	raw := []int64{0, 1, -1, 42, -42, math.MaxInt32, math.MinInt32, 1 << 20, -(1 << 20)}

	out := make([]int32, 0, len(raw))

	for _, v := range raw {
		aligned := (v >> shift) << shift
		out = append(out, int32(aligned))
	}

	return out
}

func TestTranscodeStereoS16(t *testing.T) {
	t.Parallel()

	src := []byte{
		0x00, 0x80, // -32768
		0xFF, 0x7F, // 32767
		0x01, 0x00, // 1
	}

	out := make([]int32, 3)

	n, err := TranscodePacket(S16, src, out)
	if err != nil {
		t.Fatalf("TranscodePacket: %v", err)
	}

	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	want := []int32{int32(-32768) << 16, int32(32767) << 16, int32(1) << 16}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], want[i])
		}
	}
}

func TestTranscodeUnsigned8Midpoint(t *testing.T) {
	t.Parallel()

	out := make([]int32, 1)

	if _, err := TranscodePacket(U8, []byte{0x80}, out); err != nil {
		t.Fatalf("TranscodePacket: %v", err)
	}

	if out[0] != 0 {
		t.Fatalf("midpoint unsigned sample should decode to 0, got %d", out[0])
	}
}

func TestTranscodeFloatClamping(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4)

	putF32 := func(f float32) []byte {
		bits := math.Float32bits(f)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)

		return buf
	}

	out := make([]int32, 1)

	if _, err := TranscodePacket(F32, putF32(2.0), out); err != nil {
		t.Fatalf("TranscodePacket: %v", err)
	}

	if out[0] != math.MaxInt32 {
		t.Fatalf("over-range float should clamp to MaxInt32, got %d", out[0])
	}

	if _, err := TranscodePacket(F32, putF32(-2.0), out); err != nil {
		t.Fatalf("TranscodePacket: %v", err)
	}

	if out[0] >= 0 {
		t.Fatalf("under-range float should clamp negative, got %d", out[0])
	}
}
