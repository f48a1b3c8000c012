package cryptosuite

import (
	"bytes"
	"testing"
)

func TestSessionCipherRoundTrip(t *testing.T) {
	key, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	sc, err := NewSessionCipher(key)
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}
	plaintext := []byte(`{"hello":"world"}`)
	record, err := sc.Seal(plaintext, nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(record) != NonceLen+len(plaintext)+TagLen {
		t.Fatalf("unexpected record length %d", len(record))
	}
	got, err := sc.Open(record, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got=%q want=%q", got, plaintext)
	}
}

func TestSessionCipherRejectsTamperedRecord(t *testing.T) {
	key, _ := GenerateSessionKey()
	sc, _ := NewSessionCipher(key)
	record, _ := sc.Seal([]byte("payload"), nil)
	record[len(record)-1] ^= 0xFF
	if _, err := sc.Open(record, nil); err == nil {
		t.Fatalf("expected tamper to be detected")
	}
}

func TestSessionCipherRejectsShortRecord(t *testing.T) {
	key, _ := GenerateSessionKey()
	sc, _ := NewSessionCipher(key)
	if _, err := sc.Open([]byte("short"), nil); err != ErrCiphertextTooShort {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestSessionCipherDistinctNoncesPerSeal(t *testing.T) {
	key, _ := GenerateSessionKey()
	sc, _ := NewSessionCipher(key)
	a, _ := sc.Seal([]byte("same-plaintext"), nil)
	b, _ := sc.Seal([]byte("same-plaintext"), nil)
	if bytes.Equal(a[:NonceLen], b[:NonceLen]) {
		t.Fatalf("expected distinct random nonces across Seal calls")
	}
}
