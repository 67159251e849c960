package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Syntax parses touched files whose extension it recognizes: Go sources,
// JSON and YAML. Other files pass untouched.
type Syntax struct{}

// Name implements Rule.
func (Syntax) Name() string { return "syntax" }

// Check implements Rule.
func (Syntax) Check(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		parse := parserFor(path)
		if parse == nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if err := parse(path, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

type parseFunc func(path string, data []byte) error

func parserFor(path string) parseFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return parseGo
	case ".json":
		return parseJSON
	case ".yaml", ".yml":
		return parseYAML
	default:
		return nil
	}
}

func parseGo(path string, data []byte) error {
	_, err := parser.ParseFile(token.NewFileSet(), path, data, parser.AllErrors)
	return err
}

func parseJSON(_ string, data []byte) error {
	if !json.Valid(data) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		return errors.New("invalid JSON")
	}
	return nil
}

// parseYAML decodes every document in a multi-document stream.
func parseYAML(_ string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
