package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"

	"mapsharvest-engine/internal/config"
)

const (
	// "Service" groups the app's secrets in the OS keychain.
	KeyringService = "mapsharvest"
)

func GetPostgresPassword(keyringAccount string) (string, error) {
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	return "", errors.New("postgres password not found in keychain")
}

func SetPostgresPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}

func DeletePostgresPassword(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, keyringAccount)
}

// PostgresKeyringAccount is the configured account, or one derived from the DSN's user and host.
func PostgresKeyringAccount(s config.Storage) string {
	if a := strings.TrimSpace(s.PostgresKeyringAccount); a != "" {
		return a
	}
	u, err := url.Parse(s.PostgresDSN)
	if err != nil || u.User == nil || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("mapsharvest:postgres:%s@%s", u.User.Username(), u.Host)
}

// ResolvePostgresDSN returns the DSN with the keychain password filled in when
// the URL form carries a user but no password. "" means Postgres is off.
func ResolvePostgresDSN(s config.Storage) (string, error) {
	dsn := strings.TrimSpace(s.PostgresDSN)
	if dsn == "" {
		return "", nil
	}
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.User == nil {
		return dsn, nil
	}
	if _, has := u.User.Password(); has {
		return dsn, nil
	}
	pw, err := GetPostgresPassword(PostgresKeyringAccount(s))
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(u.User.Username(), pw)
	return u.String(), nil
}
