package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"rpcdispatch/internal/jsonrpc"
	"rpcdispatch/internal/methods"
)

// DefaultTimeout bounds a single script execution
const DefaultTimeout = 3 * time.Second

var methodDirective = regexp.MustCompile(`(?m)^//\s*@method\s+(\S+)`)

// Manager loads plugins and runs them
type Manager struct {
	plugins map[string]*Plugin // method -> plugin
	caller  Caller
	timeout time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// NewManager creates a Manager. caller may be nil, in which case scripts
// calling upstream.call fail.
func NewManager(caller Caller, timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		plugins: make(map[string]*Plugin),
		caller:  caller,
		timeout: timeout,
		logger:  logger.With().Str("component", "plugin").Logger(),
	}
}

// LoadFromDirectory loads every .js file of dir. A missing directory is not
// an error; a file that fails to load is logged and skipped.
func (m *Manager) LoadFromDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		m.logger.Warn().Str("directory", dir).Msg("plugins directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat plugins directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("plugins path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read plugins directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".js" {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err == nil {
			err = m.Load(strings.TrimSuffix(entry.Name(), ".js"), string(content))
		}
		if err != nil {
			m.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to load plugin")
			continue
		}
		loaded++
	}

	m.logger.Info().Int("loaded", loaded).Str("directory", dir).Msg("plugins loaded")
	return nil
}

// Load compiles a script and adds it under the method named by its
// @method directive
func (m *Manager) Load(name, script string) error {
	match := methodDirective.FindStringSubmatch(script)
	if len(match) < 2 {
		return fmt.Errorf("plugin %s: missing @method directive", name)
	}
	method := match[1]

	program, err := goja.Compile(name+".js", script, false)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.plugins[method]; exists {
		return fmt.Errorf("plugin %s: duplicate method %s", name, method)
	}
	m.plugins[method] = &Plugin{Name: name, Method: method, program: program}

	m.logger.Info().Str("name", name).Str("method", method).Msg("plugin loaded")
	return nil
}

// Methods returns the plugin methods, sorted
func (m *Manager) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for method := range m.plugins {
		names = append(names, method)
	}
	sort.Strings(names)
	return names
}

// Register adds a registry handler for every plugin method
func (m *Manager) Register(r *methods.Registry) error {
	for _, method := range m.Methods() {
		method := method
		err := r.Register(method, func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			return m.Execute(ctx, method, params)
		})
		if err != nil {
			return fmt.Errorf("failed to register plugin method: %w", err)
		}
	}
	return nil
}

// Execute runs the plugin serving method. Failures are returned as
// *jsonrpc.Error.
func (m *Manager) Execute(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	m.mu.RLock()
	p, ok := m.plugins[method]
	m.mu.RUnlock()
	if !ok {
		return nil, jsonrpc.ErrMethodNotFound
	}

	var args interface{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, jsonrpc.NewError(ErrCodePluginInvalidArgs, fmt.Sprintf("invalid params: %v", err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rt := newRuntime(ctx, m.caller, m.logger.With().Str("plugin", p.Name).Logger())
	stop := context.AfterFunc(ctx, func() {
		rt.vm.Interrupt(ctx.Err())
	})
	defer stop()

	result, err := rt.run(p.program, args)
	if err != nil {
		return nil, m.toRPCError(ctx, p, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, fmt.Sprintf("failed to marshal result: %v", err))
	}
	return data, nil
}

func (m *Manager) toRPCError(ctx context.Context, p *Plugin, err error) *jsonrpc.Error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			m.logger.Warn().Str("method", p.Method).Dur("timeout", m.timeout).Msg("plugin execution timed out")
			return jsonrpc.NewError(ErrCodePluginTimeout, "plugin execution timed out")
		}
		return jsonrpc.NewError(jsonrpc.CodeInternalError, "request cancelled")
	}

	m.logger.Error().Err(err).Str("method", p.Method).Msg("plugin execution failed")

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return jsonrpc.NewError(ErrCodePluginExecution, exception.Value().String())
	}
	return jsonrpc.NewError(ErrCodePluginExecution, err.Error())
}
