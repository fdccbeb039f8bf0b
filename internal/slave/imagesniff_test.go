package slave

import "testing"

func TestSniffImageExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}, ".png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, ".jpg"},
		{"gif", []byte("GIF89a"), ".gif"},
		{"bmp", []byte{0x42, 0x4D, 0x00, 0x00}, ".bmp"},
		{"webp", append([]byte("RIFF1234"), []byte("WEBP")...), ".webp"},
		{"unknown", []byte{0x00, 0x01, 0x02}, ".bin"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sniffImageExt(tc.data); got != tc.want {
				t.Errorf("sniffImageExt(%q) = %q, want %q", tc.data, got, tc.want)
			}
		})
	}
}
