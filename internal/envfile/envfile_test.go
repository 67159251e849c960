package envfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeEnv(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantKey   string
		wantValue string
		wantOK    bool
	}{
		{name: "simple", line: "KEY=value", wantKey: "KEY", wantValue: "value", wantOK: true},
		{name: "double quoted", line: `KEY="hello world"`, wantKey: "KEY", wantValue: "hello world", wantOK: true},
		{name: "single quoted", line: "KEY='hello world'", wantKey: "KEY", wantValue: "hello world", wantOK: true},
		{name: "export prefix", line: "export KEY=value", wantKey: "KEY", wantValue: "value", wantOK: true},
		{name: "value with equals", line: "KEY=a=b", wantKey: "KEY", wantValue: "a=b", wantOK: true},
		{name: "spaces around", line: " KEY = value ", wantKey: "KEY", wantValue: "value", wantOK: true},
		{name: "empty value", line: "KEY=", wantKey: "KEY", wantValue: "", wantOK: true},
		{name: "no equals", line: "NOEQUALS", wantOK: false},
		{name: "empty key", line: "=value", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, value, ok := parseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if key != tt.wantKey || value != tt.wantValue {
				t.Errorf("got (%q, %q), want (%q, %q)", key, value, tt.wantKey, tt.wantValue)
			}
		})
	}
}

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	vars, err := Parse(strings.NewReader("# comment\n\nSPLICE_POLICY=deny\n  # indented comment\ngarbage\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 1 || vars["SPLICE_POLICY"] != "deny" {
		t.Errorf("vars = %v", vars)
	}
}

func TestReadFirstFileWins(t *testing.T) {
	dir := t.TempDir()
	local := writeEnv(t, dir, ".env.local", "SPLICE_POLICY=deny\n")
	shared := writeEnv(t, dir, ".env", "SPLICE_POLICY=approve\nSPLICE_LOG_LEVEL=debug\n")

	vars, err := Read(local, filepath.Join(dir, "missing"), shared)
	if err != nil {
		t.Fatal(err)
	}
	if vars["SPLICE_POLICY"] != "deny" {
		t.Errorf("SPLICE_POLICY = %q, want deny", vars["SPLICE_POLICY"])
	}
	if vars["SPLICE_LOG_LEVEL"] != "debug" {
		t.Errorf("SPLICE_LOG_LEVEL = %q, want debug", vars["SPLICE_LOG_LEVEL"])
	}
}

func TestReadNonexistentFile(t *testing.T) {
	vars, err := Read("/nonexistent/.env")
	if err != nil {
		t.Fatalf("expected nil for nonexistent file, got %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("vars = %v, want empty", vars)
	}
}

func TestLookupPrefersEnvironment(t *testing.T) {
	env := map[string]string{"A": "from-env", "EMPTY": ""}
	lookup := Lookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}, Vars{"A": "from-file", "B": "file-only", "EMPTY": "file-fills"})

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{key: "A", want: "from-env", wantOK: true},
		{key: "B", want: "file-only", wantOK: true},
		{key: "EMPTY", want: "file-fills", wantOK: true},
		{key: "C", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := lookup(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("lookup(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}
