// Package ai implements the agent capability layer: each
// Reviewer/Reviewee turn is a one-shot CLI invocation against Claude
// Code or Codex.
package ai

import (
	"fmt"
	"strings"

	"github.com/octorus/octorus/internal/config"
)

// BackendName identifies a supported CLI backend.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// RunOptions configures a one-shot backend invocation.
type RunOptions struct {
	PromptFile string
	SessionID  string
	// Resume requests continuing SessionID's conversation rather than
	// starting a fresh one.
	Resume bool
}

// Backend builds the shell command line for one agent-role
// invocation. Every call is a one-shot subprocess that prints its
// answer and exits.
type Backend interface {
	Name() BackendName

	// SupportsExplicitSessionID reports whether the caller may pick
	// its own session ID up front and later resume it. Claude
	// supports this; Codex always generates its own session ID.
	SupportsExplicitSessionID() bool

	// BuildCommand constructs the shell command that runs
	// opts.PromptFile's contents through the backend. Returns an
	// error if PromptFile is empty.
	BuildCommand(opts RunOptions) (string, error)
}

// ErrUnknownBackend is returned when the configured backend is unsupported.
var ErrUnknownBackend = fmt.Errorf("unknown AI backend")

// NewBackend constructs the named backend from config. An empty name
// resolves to Claude.
func NewBackend(name string, cfg *config.AIConfig) (Backend, error) {
	switch strings.ToLower(name) {
	case string(BackendClaude), "":
		return NewClaudeBackend(cfg.Claude), nil
	case string(BackendCodex):
		return NewCodexBackend(cfg.Codex), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// ClaudeBackend implements Backend for the Claude Code CLI.
type ClaudeBackend struct {
	command         string
	skipPermissions bool
}

// NewClaudeBackend creates a Claude backend from config.
func NewClaudeBackend(cfg config.ClaudeBackendConfig) *ClaudeBackend {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &ClaudeBackend{
		command:         command,
		skipPermissions: cfg.SkipPermissions,
	}
}

func (c *ClaudeBackend) Name() BackendName { return BackendClaude }

func (c *ClaudeBackend) SupportsExplicitSessionID() bool { return true }

func (c *ClaudeBackend) BuildCommand(opts RunOptions) (string, error) {
	if opts.PromptFile == "" {
		return "", fmt.Errorf("prompt file required")
	}

	cmd := c.command + " --print"
	if c.skipPermissions {
		cmd += " --dangerously-skip-permissions"
	}
	if opts.SessionID != "" {
		if opts.Resume {
			cmd += fmt.Sprintf(" --resume %q", opts.SessionID)
		} else {
			cmd += fmt.Sprintf(" --session-id %q", opts.SessionID)
		}
	}

	return fmt.Sprintf("%s \"$(cat %q)\"", cmd, opts.PromptFile), nil
}

// CodexBackend implements Backend for the Codex CLI.
type CodexBackend struct {
	command      string
	approvalMode string
}

// NewCodexBackend creates a Codex backend from config.
func NewCodexBackend(cfg config.CodexBackendConfig) *CodexBackend {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	mode := cfg.ApprovalMode
	if mode == "" {
		mode = "full-auto"
	}
	return &CodexBackend{
		command:      command,
		approvalMode: mode,
	}
}

func (c *CodexBackend) Name() BackendName { return BackendCodex }

// SupportsExplicitSessionID is false: Codex always generates its own
// session ID, so CLIAgent falls back to re-prompting with the
// accumulated transcript instead of a real --resume for this backend.
func (c *CodexBackend) SupportsExplicitSessionID() bool { return false }

func (c *CodexBackend) BuildCommand(opts RunOptions) (string, error) {
	if opts.PromptFile == "" {
		return "", fmt.Errorf("prompt file required")
	}

	cmd := c.command + " exec" + c.approvalFlags()
	return fmt.Sprintf("%s \"$(cat %q)\"", cmd, opts.PromptFile), nil
}

func (c *CodexBackend) approvalFlags() string {
	switch strings.ToLower(c.approvalMode) {
	case "bypass":
		return " --dangerously-bypass-approvals-and-sandbox"
	case "full-auto":
		return " --full-auto"
	default:
		return ""
	}
}
