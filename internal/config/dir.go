// Package config resolves splice's configuration directory and settings.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// EnvConfigHome overrides the configuration directory.
const EnvConfigHome = "SPLICE_CONFIG_HOME"

// EnvFile is the name of the env file read from the configuration directory.
const EnvFile = "env"

const appName = "splice"

// Dir returns the splice configuration directory, or "" when there is no
// override and no home directory.
//
// Resolution, first match wins:
//   - $SPLICE_CONFIG_HOME
//   - $XDG_CONFIG_HOME/splice when XDG_CONFIG_HOME is absolute
//   - %APPDATA%/splice on Windows
//   - ~/.config/splice
func Dir() string {
	return dirFor(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

// dirFor is Dir with the platform, environment and home lookup injected.
func dirFor(goos string, getenv func(string) string, home func() (string, error)) string {
	if dir := getenv(EnvConfigHome); dir != "" {
		return filepath.Clean(dir)
	}
	// The XDG base directory rules say relative values are to be ignored.
	if xdg := getenv("XDG_CONFIG_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName)
	}
	if goos == "windows" {
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}
	h, err := home()
	if err != nil || h == "" {
		return ""
	}
	return filepath.Join(h, ".config", appName)
}
