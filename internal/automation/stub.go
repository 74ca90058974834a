//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"

	"lightnode/internal/node"
	"lightnode/internal/protocol"
)

// ErrInvalidID is returned for script IDs that are not plain file stems.
var ErrInvalidID = errors.New("invalid script id")

// Controller is the part of a node that scripts can drive.
type Controller interface {
	Events() *node.EventBus
	Submit(f protocol.Frame) error
	Snapshot(ctx context.Context) (node.Snapshot, error)
}

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script represents a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns nil manager when automation is disabled.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return nil, nil }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns nil.
func (m *Manager) Get(_ string) (*Script, error) { return nil, nil }

// Save returns the script unchanged.
func (m *Manager) Save(s *Script) (*Script, error) { return s, nil }

// Delete is a no-op.
func (m *Manager) Delete(_ string) error { return nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ Controller, _ *Manager, _ *slog.Logger) *Engine {
	return &Engine{}
}

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Running always reports false.
func (e *Engine) Running(_ string) bool { return false }

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}

// ErrSyntax is returned by Check for scripts that do not parse.
var ErrSyntax = errors.New("lua syntax error")

// Issue is a problem found in a script without running it.
type Issue struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Analysis is what a script asks of the node.
type Analysis struct {
	Events   []string `json:"events"`
	Commands []string `json:"commands,omitempty"`
	Issues   []Issue  `json:"issues,omitempty"`
}

// Check returns an empty analysis.
func Check(_ string) (*Analysis, error) { return &Analysis{Events: []string{}}, nil }
