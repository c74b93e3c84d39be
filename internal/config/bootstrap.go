package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// EnsureUserConfig copies defaultPath into dataDir on first run and returns the
// user copy. When the shipped default is missing too (a binary run outside the
// source tree) the built-in Default() is written instead.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	userPath, err := ensureCopy(dataDir, defaultPath, "config.yml")
	if errors.Is(err, os.ErrNotExist) {
		userPath = filepath.Join(dataDir, "config.yml")
		return userPath, SaveAtomic(userPath, Default())
	}
	return userPath, err
}

// EnsureUserTactics does the same for the tactic table. Without a shipped
// table it returns "" and the built-in tactics apply.
func EnsureUserTactics(dataDir string, defaultPath string) (string, error) {
	userPath, err := ensureCopy(dataDir, defaultPath, "tactics.yml")
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return userPath, err
}

// ensureCopy reports os.ErrNotExist only when neither the user copy nor
// defaultPath exist.
func ensureCopy(dataDir, defaultPath, name string) (string, error) {
	userPath := filepath.Join(dataDir, name)

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	tmp := userPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return userPath, os.Rename(tmp, userPath)
}
