package domain

import "time"

// User is a registered journal owner.
type User struct {
	Username string
	// Credential is the stored password credential: the client-side SHA-256
	// hex digest, or a bcrypt hash of it when hardened storage is enabled.
	Credential   string
	RegisteredAt time.Time
}
