package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const serviceName = "termcix"

// KeyringTokenStore persists session credentials in the OS keyring
// (macOS Keychain, Windows Credential Manager, or Linux Secret Service).
type KeyringTokenStore struct{}

// NewKeyringTokenStore returns a new KeyringTokenStore.
func NewKeyringTokenStore() *KeyringTokenStore {
	return &KeyringTokenStore{}
}

// BasicToken wraps a username and password as a token the oauth2
// transport sends as HTTP basic authorization.
func BasicToken(username, password string) *oauth2.Token {
	return &oauth2.Token{
		TokenType:   "Basic",
		AccessToken: base64.StdEncoding.EncodeToString([]byte(username + ":" + password)),
	}
}

// SaveToken stores the given token in the OS keyring under the username.
func (k *KeyringTokenStore) SaveToken(username string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(serviceName, username, string(data)); err != nil {
		return fmt.Errorf("failed to save token to keyring: %w", err)
	}
	return nil
}

// LoadToken retrieves the token for the given username from the OS keyring.
func (k *KeyringTokenStore) LoadToken(username string) (*oauth2.Token, error) {
	data, err := keyring.Get(serviceName, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load token from keyring: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// DeleteToken removes the token for the given username from the OS keyring.
func (k *KeyringTokenStore) DeleteToken(username string) error {
	if err := keyring.Delete(serviceName, username); err != nil {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// TokenSource returns a source serving the stored token for username.
func (k *KeyringTokenStore) TokenSource(username string) (oauth2.TokenSource, error) {
	token, err := k.LoadToken(username)
	if err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(token), nil
}
