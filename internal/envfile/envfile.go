// Package envfile reads KEY=VALUE settings from .env style files.
//
// Files are read, never applied to the process environment: callers layer
// the result under the real environment with Lookup.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Vars maps variable names to values.
type Vars map[string]string

// Parse reads KEY=VALUE lines from r. Blank lines, comments and lines
// without '=' are skipped.
func Parse(r io.Reader) (Vars, error) {
	vars := make(Vars)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := parseLine(line); ok {
			vars[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

// Read parses the files in priority order. The first file that sets a
// variable wins. Missing files are skipped.
func Read(paths ...string) (Vars, error) {
	merged := make(Vars)
	for _, path := range paths {
		vars, err := readFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

func readFile(path string) (Vars, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening env file %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // best-effort close on read-only file

	vars, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return vars, nil
}

// Lookup returns a lookup that consults env first and falls back to vars.
// An empty value in env counts as unset.
func Lookup(env func(string) (string, bool), vars Vars) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := env(key); ok && v != "" {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}
}

// parseLine extracts KEY=VALUE from a line, stripping an optional export
// prefix and matching quotes around the value.
func parseLine(line string) (key, value string, ok bool) {
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}
