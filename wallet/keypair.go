package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidKey is returned for secret keys that do not form a valid keypair
var ErrInvalidKey = errors.New("invalid secret key")

// FileMode is the permission of saved wallet files
const FileMode os.FileMode = 0o600

// secretKeySize is the seed followed by the public key
const secretKeySize = 64

// pairCheck is signed and verified to prove the public half belongs to the seed
var pairCheck = []byte("solarb keypair check")

// Keypair is an ed25519 signing identity
type Keypair struct {
	private solana.PrivateKey
}

// fileFormat is the on-disk wallet layout
type fileFormat struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// FromBase58 decodes a base58 64-byte secret key (seed followed by public key)
// and checks that the public half belongs to the seed.
func FromBase58(secret string) (*Keypair, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return FromSecretKey(key)
}

// FromSecretKey builds a keypair from the 64-byte secret key layout
func FromSecretKey(raw []byte) (*Keypair, error) {
	if len(raw) != secretKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, secretKeySize, len(raw))
	}

	key := solana.PrivateKey(append([]byte(nil), raw...))
	pub := key.PublicKey()
	if !IsOnCurve(pub[:]) {
		return nil, fmt.Errorf("%w: public key is not a curve point", ErrInvalidKey)
	}
	sig, err := key.Sign(pairCheck)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !sig.Verify(pub, pairCheck) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
	}
	return &Keypair{private: key}, nil
}

// Generate creates a new random keypair
func Generate() (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{private: key}, nil
}

// Address returns the public key
func (k *Keypair) Address() solana.PublicKey {
	return k.private.PublicKey()
}

// PublicKey returns the base58 address
func (k *Keypair) PublicKey() string {
	return k.Address().String()
}

// SecretKey returns the base58 64-byte secret key
func (k *Keypair) SecretKey() string {
	return k.private.String()
}

// IsOnCurve reports whether pub is a valid compressed ed25519 point
func IsOnCurve(pub []byte) bool {
	return len(pub) == solana.PublicKeyLength && solana.IsOnCurve(pub)
}

// Save writes the keypair to path as JSON, replacing any existing file
func Save(k *Keypair, path string) error {
	data, err := json.MarshalIndent(fileFormat{
		PublicKey: k.PublicKey(),
		SecretKey: k.SecretKey(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create wallet dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, FileMode); err != nil {
		return fmt.Errorf("chmod wallet: %w", err)
	}
	return nil
}

// Load reads a wallet written by Save and verifies the stored public key
func Load(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}

	k, err := FromBase58(f.SecretKey)
	if err != nil {
		return nil, err
	}
	if f.PublicKey != "" && f.PublicKey != k.PublicKey() {
		return nil, fmt.Errorf("%w: stored public key %s does not match %s", ErrInvalidKey, f.PublicKey, k.PublicKey())
	}
	return k, nil
}
