package cryptosuite

import (
	"crypto/rsa"
	"sync"
	"testing"
)

// generating a 4096-bit key is expensive; the whole file shares one keypair.
var (
	testKeyOnce sync.Once
	testKey     *testKeyPair
)

type testKeyPair struct {
	priv *rsa.PrivateKey
}

func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		priv, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		testKey = &testKeyPair{priv: priv}
	})
	return testKey.priv
}

func TestWrapUnwrapSessionKey(t *testing.T) {
	priv := sharedTestKey(t)
	sessionKey, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	wrapped, err := WrapSessionKey(&priv.PublicKey, sessionKey)
	if err != nil {
		t.Fatalf("WrapSessionKey: %v", err)
	}
	got, err := UnwrapSessionKey(priv, wrapped)
	if err != nil {
		t.Fatalf("UnwrapSessionKey: %v", err)
	}
	if got != sessionKey {
		t.Fatalf("unwrapped key mismatch")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	priv := sharedTestKey(t)
	encoded, err := EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM: %v", err)
	}
	decoded, err := DecodePublicKeyPEM(encoded)
	if err != nil {
		t.Fatalf("DecodePublicKeyPEM: %v", err)
	}
	if decoded.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatalf("decoded modulus mismatch")
	}
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	priv := sharedTestKey(t)
	encoded := EncodePrivateKeyPEM(priv)
	decoded, err := DecodePrivateKeyPEM(encoded)
	if err != nil {
		t.Fatalf("DecodePrivateKeyPEM: %v", err)
	}
	if decoded.N.Cmp(priv.N) != 0 {
		t.Fatalf("decoded modulus mismatch")
	}
}

func TestDecodePublicKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := DecodePublicKeyPEM([]byte("not a pem block")); err != ErrNoPEMBlock {
		t.Fatalf("expected ErrNoPEMBlock, got %v", err)
	}
}
