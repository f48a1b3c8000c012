// Package passwordhash wraps bcrypt for UserProfile password storage
// (spec.md §3: "password is verified via salted hash"). bcrypt already
// embeds its own random salt in the encoded hash, so domain.UserProfile.Salt
// is kept only for wire-format fidelity with the spec's field list and is
// not consulted by this package.
package passwordhash

import "golang.org/x/crypto/bcrypt"

// Cost is the bcrypt work factor used for new hashes.
const Cost = bcrypt.DefaultCost

// Hash salts and hashes a plaintext password.
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash.
func Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
