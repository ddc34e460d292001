package exchange

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const credentialsFile = ".ioctrader"

// Credentials identify one account on an exchange.
type Credentials struct {
	URL      string
	Username string
	Password string
}

// DefaultCredentialsPath is ~/.ioctrader.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, credentialsFile), nil
}

// LoadCredentials reads a dotenv-format credentials file. EXCHANGE_URL,
// EXCHANGE_USERNAME and EXCHANGE_PASSWORD in the environment win over the
// file, which may then be missing. An empty path means the default location.
func LoadCredentials(path string) (Credentials, error) {
	if path == "" {
		var err error
		if path, err = DefaultCredentialsPath(); err != nil {
			return Credentials{}, err
		}
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
		}
		values = map[string]string{}
	}

	creds := Credentials{
		URL:      lookup(values, "EXCHANGE_URL"),
		Username: lookup(values, "EXCHANGE_USERNAME"),
		Password: lookup(values, "EXCHANGE_PASSWORD"),
	}
	if creds.URL == "" || creds.Username == "" {
		return Credentials{}, fmt.Errorf("credentials %s: EXCHANGE_URL and EXCHANGE_USERNAME are required", path)
	}
	return creds, nil
}

func lookup(values map[string]string, key string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return values[key]
}
