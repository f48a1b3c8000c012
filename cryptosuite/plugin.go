package cryptosuite

// Suite identifies a pluggable handshake/record cipher combination. The
// server currently ships exactly one (RSA-OAEP handshake wrapping an
// AES-256-GCM session key, per spec.md §4.3), but the type exists so a
// future suite can be registered without reshaping the connection pipeline.
type Suite string

// SuiteRSA4096AESGCM256 is the only suite spec.md defines.
const SuiteRSA4096AESGCM256 Suite = "rsa-oaep-4096+aes-256-gcm"

// DefaultSuite is negotiated implicitly: the protocol has no suite
// negotiation field, so every connection uses SuiteRSA4096AESGCM256.
const DefaultSuite = SuiteRSA4096AESGCM256
