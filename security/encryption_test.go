package security

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name        string
		keyLen      int
		wantErr     bool
		wantEnabled bool
	}{
		{"nil key disables encryption", 0, false, false},
		{"32-byte key enables encryption", 32, false, true},
		{"short key rejected", 16, true, false},
		{"long key rejected", 64, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var key []byte
			if tt.keyLen > 0 {
				key = bytes.Repeat([]byte{0x42}, tt.keyLen)
			}
			enc, err := NewEncryptor(key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if enc.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatalf("GenerateEncryptionKey() failed: %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() failed: %v", err)
	}

	plaintexts := []string{
		"ya29.a0AfB_byC-example-access-token",
		"1//0gexample-refresh-token",
		"",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		if plaintext != "" && ciphertext == plaintext {
			t.Error("ciphertext equals plaintext")
		}

		decrypted, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	key, _ := GenerateEncryptionKey()
	enc, _ := NewEncryptor(key)

	a, err := enc.Encrypt("same-token")
	if err != nil {
		t.Fatal(err)
	}
	b, err := enc.Encrypt("same-token")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext (nonce reuse?)")
	}
}

func TestDecryptRejectsTampered(t *testing.T) {
	key, _ := GenerateEncryptionKey()
	enc, _ := NewEncryptor(key)

	ciphertext, err := enc.Encrypt("secret-token")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := enc.Decrypt("not-base64!!"); err == nil {
		t.Error("Decrypt accepted invalid base64")
	}
	if _, err := enc.Decrypt("QUJD"); err == nil {
		t.Error("Decrypt accepted a too-short ciphertext")
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 0x01
	if _, err := enc.Decrypt(string(tampered)); err == nil {
		t.Error("Decrypt accepted tampered ciphertext")
	}
}

func TestDisabledEncryptorPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := enc.Encrypt("plain")
	if err != nil {
		t.Fatal(err)
	}
	if ciphertext != "plain" {
		t.Errorf("disabled encryptor changed value: %q", ciphertext)
	}
}
