// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// LocalUser is the identity of the sharing host: a generated username plus
// the key pair in exported (transportable) form. Created once per process
// lifetime and immutable afterwards.
type LocalUser struct {
	Username   string `json:"username"`
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// NewLocalUser avoids ad-hoc struct literals in the registry.
func NewLocalUser(privateKey, publicKey string) *LocalUser {
	return &LocalUser{
		Username:   uuid.NewString(),
		PrivateKey: privateKey,
		PublicKey:  publicKey,
	}
}
