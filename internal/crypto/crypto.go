// Package crypto implements the asymmetric message encryption used by the
// signaling channel: X25519 key agreement with an ephemeral sender key,
// ChaCha20-Poly1305 for the payload itself.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/okhramov/glimpse/internal/core"
)

const keyBytes = 32

// Sealed message layout: ephemeral public key | nonce | ciphertext.
const minSealedLen = keyBytes + chacha20poly1305.NonceSize + chacha20poly1305.Overhead

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Provider implements core.Cryptor. Zero value is ready to use.
type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

// GenerateKeyPair returns a fresh X25519 key pair in exported form.
// The private key is clamped per RFC 7748.
func (p *Provider) GenerateKeyPair() (core.KeyPair, error) {
	var priv [keyBytes]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return core.KeyPair{}, err
	}
	clamp(&priv)

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return core.KeyPair{}, err
	}
	return core.KeyPair{
		PrivateKey: exportKey(priv[:]),
		PublicKey:  exportKey(pub),
	}, nil
}

// Encrypt seals plaintext for the holder of publicKey using a one-off
// sender key, so no sender state is needed to decrypt.
func (p *Provider) Encrypt(publicKey string, plaintext []byte) ([]byte, error) {
	pub, err := importKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("import public key: %w", err)
	}

	var ephPriv [keyBytes]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, err
	}
	clamp(&ephPriv)
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	aead, err := aeadFor(ephPriv[:], pub)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, keyBytes+len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, ephPub...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, ephPub), nil
}

// Decrypt opens a message sealed by Encrypt for privateKey.
func (p *Provider) Decrypt(privateKey string, ciphertext []byte) ([]byte, error) {
	priv, err := importKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("import private key: %w", err)
	}
	if len(ciphertext) < minSealedLen {
		return nil, ErrMalformedCiphertext
	}

	ephPub := ciphertext[:keyBytes]
	nonce := ciphertext[keyBytes : keyBytes+chacha20poly1305.NonceSize]
	sealed := ciphertext[keyBytes+chacha20poly1305.NonceSize:]

	aead, err := aeadFor(priv, ephPub)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed, ephPub)
	if err != nil {
		return nil, fmt.Errorf("open sealed message: %w", err)
	}
	return plain, nil
}

func aeadFor(priv, pub []byte) (cipher.AEAD, error) {
	secret, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, err
	}
	key := sha256.Sum256(secret)
	return chacha20poly1305.New(key[:])
}

func exportKey(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func importKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != keyBytes {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyBytes, len(b))
	}
	return b, nil
}

func clamp(k *[keyBytes]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
