//go:build !with_aac

package aac

// decodeWholeFile returns ErrNotSupported when built without the
// with_aac tag.
func decodeWholeFile(_ []byte) (pcm []byte, sampleRate, channels int, err error) {
	return nil, 0, 0, ErrNotSupported
}
