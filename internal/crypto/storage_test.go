package crypto

import "testing"

func TestEncryptDecryptBytesRoundTrip(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	plaintext := []byte("super secret obs password")
	ciphertext, err := EncryptBytes(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	if string(ciphertext) == string(plaintext) {
		t.Fatalf("ciphertext equals plaintext")
	}

	got, err := DecryptBytes(key, ciphertext)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestDecryptBytesRejectsWrongKey(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	wrongKey := make([]byte, 32)
	wrongKey[0] = 1

	ciphertext, err := EncryptBytes(key, []byte("payload"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	if _, err := DecryptBytes(wrongKey, ciphertext); err == nil {
		t.Errorf("DecryptBytes with wrong key: want error, got nil")
	}
}

func TestDecryptBytesRejectsTruncatedCiphertext(t *testing.T) {
	t.Parallel()

	key := make([]byte, 32)
	if _, err := DecryptBytes(key, []byte("short")); err == nil {
		t.Errorf("DecryptBytes(short ciphertext): want error, got nil")
	}
}
