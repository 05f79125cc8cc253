package domain

// Credential is salted, slow-hashed password material gating sensitive
// operations. Absence of a credential means the gate is open.
type Credential struct {
	Hash       []byte `json:"hash"`
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
}

// IsZero reports whether the credential holds no material.
func (c Credential) IsZero() bool {
	return len(c.Hash) == 0 && len(c.Salt) == 0
}

// Clone returns a deep copy so callers cannot mutate stored key material.
func (c Credential) Clone() Credential {
	return Credential{
		Hash:       append([]byte(nil), c.Hash...),
		Salt:       append([]byte(nil), c.Salt...),
		Iterations: c.Iterations,
	}
}
