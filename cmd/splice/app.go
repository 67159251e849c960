package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gorewood/splice/internal/backup"
	"github.com/gorewood/splice/internal/config"
	"github.com/gorewood/splice/internal/engine"
	"github.com/gorewood/splice/internal/envfile"
	"github.com/gorewood/splice/internal/fix"
	"github.com/gorewood/splice/internal/git"
	"github.com/gorewood/splice/internal/logging"
	"github.com/gorewood/splice/internal/metrics"
	"github.com/gorewood/splice/internal/output"
	"github.com/gorewood/splice/internal/preflight"
	"github.com/gorewood/splice/internal/risk"
	"github.com/gorewood/splice/internal/validate"
)

// app is the per-invocation wiring shared by commands: resolved config,
// logger and the paths fixes resolve against.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	projectRoot string
	cwd         string
}

// newApp loads config for projectRoot (empty means the working directory)
// and builds the logger. Config problems are user errors.
func newApp(cmd *cobra.Command, projectRoot string) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, output.NewSystemErrorWithCause("cannot determine working directory", err)
	}
	if projectRoot == "" {
		projectRoot = cwd
	}
	if projectRoot, err = filepath.Abs(projectRoot); err != nil {
		return nil, output.NewUserErrorWithCause(fmt.Sprintf("invalid project root: %v", err), err)
	}

	cfg, err := loadConfig(cmd, projectRoot)
	if err != nil {
		return nil, err
	}
	if level := persistentFlag(cmd, "log-level"); level != "" {
		cfg.LogLevel = level
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return nil, output.NewUserErrorWithCause(err.Error(), err)
	}

	return &app{cfg: cfg, logger: logger, projectRoot: projectRoot, cwd: cwd}, nil
}

// loadConfig layers the global file, the project file and the --config
// file, then SPLICE_* variables.
func loadConfig(cmd *cobra.Command, projectRoot string) (config.Config, error) {
	var paths []string
	if dir := config.Dir(); dir != "" {
		paths = append(paths, filepath.Join(dir, config.GlobalFile))
	}
	paths = append(paths, filepath.Join(projectRoot, config.ProjectFile))
	if explicit := persistentFlag(cmd, "config"); explicit != "" {
		// Missing layers are skipped, but a file named on the command line
		// must exist.
		if _, err := os.Stat(explicit); err != nil {
			return config.Config{}, output.NewUserErrorWithCause(fmt.Sprintf("config file: %v", err), err)
		}
		paths = append(paths, explicit)
	}

	// SPLICE_* settings may also live in env files; the real environment
	// wins, then the first file that sets a variable.
	envPaths := []string{filepath.Join(projectRoot, ".env.local"), filepath.Join(projectRoot, ".env")}
	if dir := config.Dir(); dir != "" {
		envPaths = append(envPaths, filepath.Join(dir, config.EnvFile))
	}
	vars, err := envfile.Read(envPaths...)
	if err != nil {
		return config.Config{}, output.NewUserErrorWithCause(err.Error(), err)
	}

	cfg, err := config.LoadFilesEnv(envfile.Lookup(os.LookupEnv, vars), paths...)
	if err != nil {
		return cfg, output.NewUserErrorWithCause(fmt.Sprintf("loading config: %v", err), err)
	}
	return cfg, nil
}

// fixContext is the path-resolution context for fixes applied by this run.
func (a *app) fixContext() fix.Context {
	return fix.Context{ProjectRoot: a.projectRoot, Cwd: a.cwd}
}

// policy builds the confirmation policy named in config.
func (a *app) policy() (risk.Policy, error) {
	p, err := risk.ParsePolicy(a.cfg.Policy, a.cfg.AutoApproveThreshold, a.logger)
	if err != nil {
		return nil, output.NewUserErrorWithCause(err.Error(), err)
	}
	return p, nil
}

// newEngine wires an engine from config. rec may be nil.
func (a *app) newEngine(policy risk.Policy, rec *metrics.Recorder) *engine.Engine {
	mgr := backup.NewManager(backup.NewStore(a.cfg.BackupDir), a.logger)

	var dirty preflight.DirtyFunc
	if a.cfg.GitCheck {
		dirty = git.DirtyFiles
	}
	var rules []validate.Rule
	if a.cfg.SyntaxCheck {
		rules = append(rules, validate.Syntax{})
	}
	var journal *engine.Journal
	if a.cfg.HistoryFile != "" {
		journal = engine.NewJournal(a.cfg.HistoryFile)
	}

	eng := engine.New(mgr, engine.Options{
		Preflight: preflight.New(preflight.Options{
			Space:  mgr.Store().AvailableBytes,
			Dirty:  dirty,
			Logger: a.logger,
		}),
		Assessor:  risk.NewAssessor(a.cfg.CriticalFiles...),
		Policy:    policy,
		Validator: validate.New(a.logger, rules...),
		Logger:    a.logger,
		Metrics:   rec,
		Journal:   journal,
	})
	if err := eng.LoadHistory(); err != nil {
		a.logger.Warn("history not loaded", "path", a.cfg.HistoryFile, "error", err)
	}
	return eng
}
