// Package search manages the external full-text search integration for tests
// that need a built index or a running search daemon. A per-run temp
// directory holds the rendered daemon configuration, index data, and logs;
// the daemon itself is a tracked subprocess killed at end of test or run.
//
// The integration only activates when the configured database engine is
// MySQL, which is the only backend the indexer can read.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"text/template"

	"github.com/akheron/nosedjango/errors"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/process"
	"github.com/akheron/nosedjango/settings"
)

// Binary names, overridable for tests.
const (
	defaultIndexerBinary = "indexer"
	defaultDaemonBinary  = "searchd"
)

// configFilename is the rendered configuration file inside the temp dir.
const configFilename = "searchd.conf"

// templateContext is what the configuration template is rendered against.
type templateContext struct {
	DatabaseName     string
	DatabaseUsername string
	DatabasePassword string
	SearchDataDir    string
	SearchdLogDir    string
}

// Integration drives the search daemon lifecycle for a run.
type Integration struct {
	cfg   settings.SearchConfig
	dbCfg settings.DatabaseConfig
	log   *logger.Logger

	IndexerBinary string
	DaemonBinary  string

	tmpDir     string
	configPath string
	daemon     *process.Handle
	mu         sync.Mutex
}

// New creates the search integration for the given configuration.
func New(cfg settings.SearchConfig, dbCfg settings.DatabaseConfig, log *logger.Logger) *Integration {
	return &Integration{
		cfg:           cfg,
		dbCfg:         dbCfg,
		log:           log.WithComponent("search"),
		IndexerBinary: defaultIndexerBinary,
		DaemonBinary:  defaultDaemonBinary,
	}
}

// Active reports whether the integration applies to this run: a config
// template must be given and the database engine must be MySQL.
func (i *Integration) Active() bool {
	return i.cfg.ConfigTemplate != "" && i.dbCfg.Engine == "mysql"
}

// Port returns the port the daemon listens on.
func (i *Integration) Port() int { return i.cfg.Port }

// RenderConfig renders the daemon configuration from the template file,
// substituting database credentials and the per-run temp paths. The temp
// directory is created lazily on first use.
func (i *Integration) RenderConfig() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.renderConfigLocked()
}

func (i *Integration) renderConfigLocked() (string, error) {
	if i.configPath != "" {
		return i.configPath, nil
	}

	if i.tmpDir == "" {
		dir, err := os.MkdirTemp("", "nosedjango-search-")
		if err != nil {
			return "", fmt.Errorf("failed to create search temp dir: %w", err)
		}
		i.tmpDir = dir
	}

	tmpl, err := template.ParseFiles(i.cfg.ConfigTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse search config template %s: %w", i.cfg.ConfigTemplate, err)
	}

	path := filepath.Join(i.tmpDir, configFilename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create search config: %w", err)
	}
	defer f.Close()

	tctx := templateContext{
		DatabaseName:     i.dbCfg.Name,
		DatabaseUsername: i.dbCfg.User,
		DatabasePassword: i.dbCfg.Password,
		SearchDataDir:    i.tmpDir,
		SearchdLogDir:    i.tmpDir,
	}
	if err := tmpl.Execute(f, tctx); err != nil {
		return "", fmt.Errorf("failed to render search config: %w", err)
	}

	i.configPath = path
	return path, nil
}

// BuildIndex runs the external indexer synchronously. A nonzero exit is
// reported with the captured output but does not abort the run.
func (i *Integration) BuildIndex(ctx context.Context) error {
	configPath, err := i.RenderConfig()
	if err != nil {
		return err
	}

	result, err := process.Run(ctx, process.Command{
		Binary: i.IndexerBinary,
		Args:   []string{"--config", configPath, "--all"},
	})
	if err != nil {
		exitCode := -1
		if result != nil {
			exitCode = result.ExitCode
			i.log.Error("Search indexing failed", map[string]interface{}{
				"exit_code": exitCode,
				"stdout":    string(result.Stdout),
				"stderr":    string(result.Stderr),
			})
		}
		return errors.ProcessExit(i.IndexerBinary, exitCode).WithCause(err)
	}
	return nil
}

// StartDaemon launches the search daemon as a tracked background process. An
// immediate exit is detected and reported non-fatally.
func (i *Integration) StartDaemon(ctx context.Context) error {
	configPath, err := i.RenderConfig()
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.daemon != nil {
		return nil
	}

	handle, err := process.Start(process.Command{
		Binary: i.DaemonBinary,
		Args: []string{
			"--config", configPath,
			"--console",
			"--port", strconv.Itoa(i.cfg.Port),
		},
	})
	if err != nil {
		return errors.ProcessExit(i.DaemonBinary, -1).WithCause(err)
	}

	if exited, code := handle.Exited(); exited {
		stdout, stderr := handle.Output()
		i.log.Error("Search daemon unavailable", map[string]interface{}{
			"exit_code": code,
			"stdout":    string(stdout),
			"stderr":    string(stderr),
		})
		return errors.ProcessExit(i.DaemonBinary, code)
	}

	i.daemon = handle
	i.log.Info("Search daemon started", map[string]interface{}{
		logger.FieldPID: handle.PID(),
		"port":          i.cfg.Port,
	})
	return nil
}

// StopDaemon kills the daemon forcibly if it is running.
func (i *Integration) StopDaemon() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.daemon == nil {
		return nil
	}
	err := i.daemon.Kill()
	i.daemon = nil
	return err
}

// Finalize stops any daemon and removes the temp directory. A run that never
// created one is fine.
func (i *Integration) Finalize() error {
	if err := i.StopDaemon(); err != nil {
		i.log.Warn("Failed to stop search daemon", logger.ErrorFields("kill", err))
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tmpDir == "" {
		return nil
	}
	if err := os.RemoveAll(i.tmpDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove search temp dir: %w", err)
	}
	i.tmpDir = ""
	i.configPath = ""
	return nil
}
