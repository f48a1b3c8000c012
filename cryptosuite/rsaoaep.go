package cryptosuite

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
)

// RSAKeyBits is the server keypair size required by spec.md §4.3.
const RSAKeyBits = 4096

// ErrNotRSAPrivateKey / ErrNotRSAPublicKey are returned by the PEM decoders
// when the block parses but isn't the expected key type.
var (
	ErrNotRSAPrivateKey = errors.New("cryptosuite: PEM block is not an RSA private key")
	ErrNotRSAPublicKey  = errors.New("cryptosuite: PEM block is not an RSA public key")
	ErrNoPEMBlock       = errors.New("cryptosuite: no PEM block found")
)

// GenerateKeyPair creates a fresh 4096-bit RSA keypair for server startup,
// used to wrap per-connection AES session keys during the handshake.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, RSAKeyBits)
}

// WrapSessionKey encrypts a session key under the server's RSA public key
// using OAEP with SHA-256, per spec.md §4.3.
func WrapSessionKey(pub *rsa.PublicKey, sessionKey [32]byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, sessionKey[:], nil)
}

// UnwrapSessionKey decrypts a session key wrapped by WrapSessionKey.
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([32]byte, error) {
	var key [32]byte
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return key, err
	}
	if len(plain) != 32 {
		return key, errors.New("cryptosuite: unwrapped session key has unexpected length")
	}
	copy(key[:], plain)
	return key, nil
}

// EncodePublicKeyDER serializes pub as a raw PKIX DER blob, the exact
// format carried in the AUTH_HANDSHAKE_RES payload (spec.md §4.4: "DER-
// encoded server RSA public key"). Unlike EncodePublicKeyPEM this has no
// armor, since the wire payload is binary, not text.
func EncodePublicKeyDER(pub *rsa.PublicKey) ([]byte, error) {
	return x509.MarshalPKIXPublicKey(pub)
}

// DecodePublicKeyDER parses a raw PKIX DER blob back into an RSA public key.
func DecodePublicKeyDER(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAPublicKey
	}
	return rsaPub, nil
}

// EncodePublicKeyPEM serializes pub as a PKIX/PEM block, used for
// persisting the server's public key alongside its private key (spec.md
// §12, optional key persistence).
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// DecodePublicKeyPEM parses a PKIX/PEM-encoded RSA public key.
func DecodePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAPublicKey
	}
	return rsaPub, nil
}

// EncodePrivateKeyPEM serializes priv as a PKCS#1/PEM block, used when
// persisting the server's keypair across restarts (spec.md §12, optional
// key persistence).
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) []byte {
	der := x509.MarshalPKCS1PrivateKey(priv)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

// DecodePrivateKeyPEM parses a PKCS#1/PEM-encoded RSA private key.
func DecodePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return priv, nil
}
