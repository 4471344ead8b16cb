package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewKeeperRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewKeeper(bytes.Repeat([]byte{1}, n)); err == nil {
			t.Errorf("expected error for %d-byte key", n)
		}
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	k, err := NewKeeper(testKey())
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := k.Seal("sk-super-secret-key")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "sk-super-secret-key" {
		t.Fatal("sealed token equals plaintext")
	}

	opened, err := k.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if opened != "sk-super-secret-key" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

// Random nonces mean two seals of one plaintext never collide.
func TestSealIsNonDeterministic(t *testing.T) {
	k, _ := NewKeeper(testKey())

	a, err := k.Seal("same input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := k.Seal("same input")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two seals produced identical tokens")
	}
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	k, _ := NewKeeper(testKey())

	sealed, err := k.Seal("credential")
	if err != nil {
		t.Fatal(err)
	}

	tampered := []byte(sealed)
	tampered[len(tampered)/2] ^= 'X'

	if _, err := k.Open(string(tampered)); err == nil {
		t.Error("expected error for tampered token")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	k, _ := NewKeeper(testKey())

	for _, token := range []string{"", "not base64!!!", "YWJj"} {
		if _, err := k.Open(token); err == nil {
			t.Errorf("expected error opening %q", token)
		}
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	k1, _ := NewKeeper(testKey())
	k2, _ := NewKeeper(bytes.Repeat([]byte{0x99}, 32))

	sealed, err := k1.Seal("credential")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := k2.Open(sealed); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}
}
