// Package secrets resolves node credentials. Values are encrypted at rest;
// the resolver decrypts them so plaintext only ever exists in memory for the
// duration of one node's I/O call.
package secrets

import (
	"context"
	"errors"
	"fmt"
)

// ErrCredentialNotFound indicates the credential identifier is absent or does
// not belong to the owner. Executors treat this as non-retriable.
var ErrCredentialNotFound = errors.New("credential not found")

// Static is an in-memory resolver keyed by "{ownerID}/{credentialID}",
// useful in tests and local development.
type Static map[string]string

func (s Static) Resolve(_ context.Context, credentialID, ownerID string) (string, error) {
	value, ok := s[ownerID+"/"+credentialID]
	if !ok {
		return "", fmt.Errorf("credential %q for owner %q: %w", credentialID, ownerID, ErrCredentialNotFound)
	}

	return value, nil
}
