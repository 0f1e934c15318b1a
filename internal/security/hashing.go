package security

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxInput is the longest password bcrypt accepts.
const bcryptMaxInput = 72

// Hasher stores and checks account passwords with bcrypt. Plaintext passwords must never be
// logged or persisted.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher with cost clamped to bcrypt's range. cost <= 0 uses bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt cost used for new hashes.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of password. Passwords longer than bcrypt's 72-byte input limit
// are reduced to their SHA-256 hex digest first, so every accepted length is hashable.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Match reports whether password matches hash. An empty hash (unknown account) still runs a
// bcrypt comparison against a throwaway hash, so both misses take about the same time.
func (h *Hasher) Match(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummyHash(), bcryptInput(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

func (h *Hasher) dummyHash() []byte {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("unknown-account"), h.cost)
	})
	return h.dummy
}

func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}
