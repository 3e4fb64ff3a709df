package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoConfig is returned by Discover when no config file exists.
var ErrNoConfig = errors.New("no config file found")

// userDir and userFile name the per-user config under os.UserConfigDir.
const (
	userDir  = "cosmoview"
	userFile = "config.yaml"
)

// Discover finds the config file path.
//
// COSMOVIEW_CONFIG wins and must name an existing file. Otherwise the nearest
// .cosmoview.yaml from the working directory upwards is used, so a checkout
// next to a simulation server can pin its endpoints. The per-user
// <UserConfigDir>/cosmoview/config.yaml is the last resort.
func Discover() (string, error) {
	if env := os.Getenv(EnvConfig); env != "" {
		if isFile(env) {
			return env, nil
		}
		return "", fmt.Errorf("%s=%q: %w", EnvConfig, env, os.ErrNotExist)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for dir := cwd; ; {
		candidate := filepath.Join(dir, FileName)
		if isFile(candidate) {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if user, ok := userConfigPath(); ok && isFile(user) {
		return user, nil
	}
	return "", fmt.Errorf("%w (looked for %s from %s upwards)", ErrNoConfig, FileName, cwd)
}

func userConfigPath() (string, bool) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, userDir, userFile), true
}

// isFile reports whether path exists and is not a directory.
func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
