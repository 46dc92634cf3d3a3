package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore over environment variables.
// Read-only; the last resort in the resolution chain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from REPOSTER_TOKEN / REPOSTER_ACCOUNT_ID.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	token := os.Getenv("REPOSTER_TOKEN")
	if token == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "default"
	}
	return &Account{
		Name:         name,
		Token:        token,
		AccountID:    os.Getenv("REPOSTER_ACCOUNT_ID"),
		LastModified: time.Now(),
	}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}
