package ring

import "unsafe"

// bytesOf returns a byte-level view over data's backing array, used only
// to hand the backing storage to mlock/munlock. It never escapes the
// lifetime of data and is never written through.
func bytesOf[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}

	var zero T

	size := int(unsafe.Sizeof(zero)) * len(data)

	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), size)
}
