package fix

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFix is returned when a fix document fails structural validation.
var ErrInvalidFix = errors.New("invalid fix")

// fixValidate checks the struct tags on Fix and its children.
// Field names in messages use the json tag so they match the document.
var fixValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads a fix document from path. Files ending in .json are decoded as
// JSON; anything else is decoded as YAML (which also accepts JSON).
func Load(path string) (Fix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fix{}, fmt.Errorf("reading fix file %s: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	f, err := Parse(data, format)
	if err != nil {
		return Fix{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a fix document. format is "json" or "yaml".
func Parse(data []byte, format string) (Fix, error) {
	var f Fix
	switch format {
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return Fix{}, fmt.Errorf("decoding fix JSON: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Fix{}, fmt.Errorf("decoding fix YAML: %w", err)
		}
	default:
		return Fix{}, fmt.Errorf("unsupported fix format %q", format)
	}
	if err := Validate(f); err != nil {
		return Fix{}, err
	}
	return f, nil
}

// Validate checks the structural constraints of a fix: confidence within
// [0,1], at least one change, every change naming a file, and a known
// complexity when one is given. Change types are not checked here; an
// unknown type is reported by the executor when the change is attempted.
func Validate(f Fix) error {
	err := fixValidate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidFix, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFix, strings.Join(msgs, "; "))
}

// describeFieldError renders a validator error as "field rule".
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Fix.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must have at least " + fe.Param() + " item(s)"
	case "gte", "lte":
		return field + " must be between 0 and 1"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " failed " + fe.Tag() + " check"
	}
}
