package slave

import "bytes"

// sniffImageExt inspects magic bytes to choose a file extension for a
// staged image. Unknown magic falls back to ".bin" rather than failing
// the apply attempt.
func sniffImageExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return ".png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return ".jpg"
	case bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46, 0x38}):
		return ".gif"
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return ".bmp"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return ".webp"
	default:
		return ".bin"
	}
}
