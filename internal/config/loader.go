package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// MainFile is the gateway configuration file inside the config directory.
const MainFile = "gateway.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	watchers  []func(path string)
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads gateway.yaml over the defaults. A missing file leaves the defaults in place.
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	path := filepath.Join(l.configDir, MainFile)
	if err := LoadFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load gateway config: %w", err)
		}
		l.logger.Warn("gateway config not found, using defaults", "path", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnChange registers a callback that fires with the path of every changed file under a watched
// directory. Changes to gateway.yaml reload the config before callbacks run.
func (l *Loader) OnChange(fn func(path string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the config directory, plus any extra directories, until done is closed.
func (l *Loader) Watch(done <-chan struct{}, extraDirs ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	dirs := append([]string{l.configDir}, extraDirs...)
	seen := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch config dir %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					l.handleChange(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

func (l *Loader) handleChange(path string) {
	if filepath.Base(path) == MainFile {
		l.logger.Info("config file changed, reloading", "file", path)
		if err := l.Load(); err != nil {
			l.logger.Error("failed to reload config", "error", err)
			return
		}
	}

	l.mu.RLock()
	watchers := append([]func(string){}, l.watchers...)
	l.mu.RUnlock()
	for _, fn := range watchers {
		fn(path)
	}
}
