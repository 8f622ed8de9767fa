package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/coachpo/ndax-gateway/internal/auth"
)

// Credential variable names, matching the exchange's .env convention.
const (
	EnvAPIKey      = "API_KEY"
	EnvSignature   = "SIGNATURE"
	EnvUserID      = "USER_ID"
	EnvAccountName = "ACCOUNT_NAME"
	EnvAccountID   = "ACCOUNT_ID"
)

// LoadCredentials reads credentials from the process environment, falling back to envFile.
// The process environment wins over the file; the file is parsed without mutating the environment.
// A missing envFile is not an error. Completeness is checked later by auth.NewSigner.
func LoadCredentials(envFile string) (auth.Credentials, error) {
	fileValues := map[string]string{}
	if path := strings.TrimSpace(envFile); path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return auth.Credentials{}, fmt.Errorf("read credentials file %s: %w", path, err)
		}
	}

	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}

	return auth.Credentials{
		APIKey:      lookup(EnvAPIKey),
		Secret:      lookup(EnvSignature),
		UserID:      lookup(EnvUserID),
		AccountName: lookup(EnvAccountName),
		AccountID:   lookup(EnvAccountID),
	}, nil
}
