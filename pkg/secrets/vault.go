package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileVault stores credentials in a JSON file, each value AES-256-GCM
// encrypted with a key supplied at construction. Entries are keyed by
// "{ownerID}/{credentialID}".
type FileVault struct {
	path string
	aead cipher.AEAD

	mu sync.Mutex
}

// NewFileVault opens a vault at path with a 32-byte hex-encoded key.
func NewFileVault(path, hexKey string) (*FileVault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid vault key encoding: %w", err)
	}

	if len(key) != 32 {
		return nil, errors.New("vault key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault cipher: %w", err)
	}

	return &FileVault{path: path, aead: aead}, nil
}

// Resolve returns the decrypted credential value.
func (v *FileVault) Resolve(_ context.Context, credentialID, ownerID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return "", err
	}

	sealed, ok := entries[ownerID+"/"+credentialID]
	if !ok {
		return "", fmt.Errorf("credential %q for owner %q: %w", credentialID, ownerID, ErrCredentialNotFound)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("corrupt credential %q: %w", credentialID, err)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("corrupt credential %q: ciphertext too short", credentialID)
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential %q: %w", credentialID, err)
	}

	return string(plaintext), nil
}

// Store encrypts and persists a credential value.
func (v *FileVault) Store(_ context.Context, credentialID, ownerID, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.load()
	if err != nil {
		return err
	}

	nonce := make([]byte, v.aead.NonceSize())

	_, err = rand.Read(nonce)
	if err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(value), nil)
	entries[ownerID+"/"+credentialID] = base64.StdEncoding.EncodeToString(sealed)

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vault: %w", err)
	}

	err = os.WriteFile(v.path, raw, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}

	return nil
}

func (v *FileVault) load() (map[string]string, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	entries := map[string]string{}

	err = json.Unmarshal(raw, &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault: %w", err)
	}

	return entries, nil
}
