package domain

import "time"

// APIKey is a public credit-API credential. Only the sha256 hash of the
// plaintext key is persisted.
type APIKey struct {
	ID         string     `json:"id" firestore:"-"`
	UserID     string     `json:"userId" firestore:"userId"`
	Name       string     `json:"name" firestore:"name"`
	Prefix     string     `json:"prefix" firestore:"prefix"`
	Hash       string     `json:"-" firestore:"hash"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" firestore:"lastUsedAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty" firestore:"revokedAt"`
}

// Revoked reports whether the key can no longer be used.
func (k APIKey) Revoked() bool {
	return k.RevokedAt != nil
}
