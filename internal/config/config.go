package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File names searched by Load.
const (
	GlobalFile  = "config.yaml"
	ProjectFile = ".splice.yaml"
)

// Config holds every setting splice reads from files and the environment.
type Config struct {
	BackupDir            string        `yaml:"backup_dir"`
	HistoryFile          string        `yaml:"history_file"`
	Policy               string        `yaml:"policy"`
	AutoApproveThreshold float64       `yaml:"auto_approve_threshold"`
	MaxBackupAge         time.Duration `yaml:"max_backup_age"`
	CriticalFiles        []string      `yaml:"critical_files"`
	SyntaxCheck          bool          `yaml:"syntax_check"`
	GitCheck             bool          `yaml:"git_check"`
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
}

// Default returns the built-in settings, rooted at Dir.
func Default() Config {
	dir := Dir()
	return Config{
		BackupDir:            filepath.Join(dir, "backups"),
		HistoryFile:          filepath.Join(dir, "history.jsonl"),
		Policy:               "auto",
		AutoApproveThreshold: 0.8,
		MaxBackupAge:         24 * time.Hour,
		GitCheck:             true,
		LogLevel:             "warn",
		LogFormat:            "text",
	}
}

// Load layers Default, the global config file, the project file in
// projectRoot and SPLICE_* environment variables, later layers winning.
// Missing files are skipped.
func Load(projectRoot string) (Config, error) {
	paths := []string{filepath.Join(Dir(), GlobalFile)}
	if projectRoot != "" {
		paths = append(paths, filepath.Join(projectRoot, ProjectFile))
	}
	return LoadFiles(paths...)
}

// LoadFiles layers Default, each file in order and the environment.
func LoadFiles(paths ...string) (Config, error) {
	return LoadFilesEnv(os.LookupEnv, paths...)
}

// LoadFilesEnv is LoadFiles reading SPLICE_* variables through lookup.
func LoadFilesEnv(lookup func(string) (string, bool), paths ...string) (Config, error) {
	cfg := Default()
	for _, path := range paths {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.mergeEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Relative paths in a file are relative to that file.
	base := filepath.Dir(path)
	c.BackupDir = resolveFrom(base, c.BackupDir)
	c.HistoryFile = resolveFrom(base, c.HistoryFile)
	return nil
}

func resolveFrom(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// mergeEnv applies SPLICE_* overrides.
func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SPLICE_BACKUP_DIR", &c.BackupDir)
	str("SPLICE_HISTORY_FILE", &c.HistoryFile)
	str("SPLICE_POLICY", &c.Policy)
	str("SPLICE_LOG_LEVEL", &c.LogLevel)
	str("SPLICE_LOG_FORMAT", &c.LogFormat)

	if v, ok := lookup("SPLICE_AUTO_APPROVE_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SPLICE_AUTO_APPROVE_THRESHOLD: %w", err)
		}
		c.AutoApproveThreshold = f
	}
	if v, ok := lookup("SPLICE_MAX_BACKUP_AGE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPLICE_MAX_BACKUP_AGE: %w", err)
		}
		c.MaxBackupAge = d
	}
	for key, dst := range map[string]*bool{
		"SPLICE_SYNTAX_CHECK": &c.SyntaxCheck,
		"SPLICE_GIT_CHECK":    &c.GitCheck,
	} {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	if v, ok := lookup("SPLICE_CRITICAL_FILES"); ok && v != "" {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.CriticalFiles = append(c.CriticalFiles, name)
			}
		}
	}
	return nil
}

// Validate rejects settings no component can honor.
func (c Config) Validate() error {
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 1 {
		return fmt.Errorf("auto_approve_threshold must be within [0, 1], got %v", c.AutoApproveThreshold)
	}
	if c.MaxBackupAge < 0 {
		return fmt.Errorf("max_backup_age must not be negative, got %v", c.MaxBackupAge)
	}
	if c.BackupDir == "" {
		return errors.New("backup_dir is empty and no config directory could be determined")
	}
	return nil
}
