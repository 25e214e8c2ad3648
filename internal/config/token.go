package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
)

// TokenEnv overrides the stored local API token.
const TokenEnv = "VQA_API_TOKEN"

const (
	keyringService = "vqa"
	tokenItem      = "api_token"
)

// TokenSource says where the local API token came from.
type TokenSource string

const (
	TokenFromEnv     TokenSource = "env"
	TokenFromKeyring TokenSource = "keyring"
	TokenGenerated   TokenSource = "generated"
	TokenEphemeral   TokenSource = "ephemeral"
)

// OpenKeyring opens the platform secret store, falling back to an
// encrypted file under the data directory.
func OpenKeyring(cfg Config) (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName:      keyringService,
		FileDir:          filepath.Join(cfg.Storage.DataDir, "keyring"),
		FilePasswordFunc: keyring.FixedStringPrompt(keyringService),
	})
}

// APIToken returns the bearer token for the local API. The environment
// wins; otherwise the token is read from kr, generating and storing one on
// first use. If kr is nil or unusable the token is ephemeral.
func APIToken(kr keyring.Keyring) (string, TokenSource, error) {
	if tok := os.Getenv(TokenEnv); tok != "" {
		return tok, TokenFromEnv, nil
	}
	if kr == nil {
		return uuid.NewString(), TokenEphemeral, nil
	}

	item, err := kr.Get(tokenItem)
	if err == nil && len(item.Data) > 0 {
		return string(item.Data), TokenFromKeyring, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return uuid.NewString(), TokenEphemeral, fmt.Errorf("reading api token: %w", err)
	}

	tok := uuid.NewString()
	if err := kr.Set(keyring.Item{Key: tokenItem, Data: []byte(tok), Label: "vqa local API token"}); err != nil {
		return tok, TokenEphemeral, fmt.Errorf("storing api token: %w", err)
	}
	return tok, TokenGenerated, nil
}
