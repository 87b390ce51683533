package ai

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// runOneShot writes prompt to a temp file, invokes backend's command
// through "sh -c" under ctx, and returns the extracted JSON text from
// stdout. Each Reviewer/Reviewee turn is one subprocess invocation:
// no pty, no long-lived session to drive — just stdout and an exit
// code.
func runOneShot(ctx context.Context, backend Backend, workingDir, prompt string, opts RunOptions) (string, error) {
	promptFile, err := os.CreateTemp("", "octorus-prompt-*.md")
	if err != nil {
		return "", fmt.Errorf("create prompt file: %w", err)
	}
	if _, err := promptFile.WriteString(prompt); err != nil {
		_ = promptFile.Close()
		_ = os.Remove(promptFile.Name())
		return "", fmt.Errorf("write prompt file: %w", err)
	}
	if err := promptFile.Close(); err != nil {
		_ = os.Remove(promptFile.Name())
		return "", fmt.Errorf("close prompt file: %w", err)
	}
	defer func() {
		_ = os.Remove(promptFile.Name())
	}()

	opts.PromptFile = promptFile.Name()
	cmdString, err := backend.BuildCommand(opts)
	if err != nil {
		return "", fmt.Errorf("build backend command: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdString)
	cmd.Env = os.Environ()
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return "", fmt.Errorf("%s command failed: %w\nstderr: %s", backend.Name(), err, errMsg)
	}

	return extractJSON(strings.TrimSpace(string(output))), nil
}

// extractJSON strips a markdown code fence (if present) and bounds
// the result to the first '{' .. last '}' span, since agent output
// is often wrapped in prose or a fenced code block.
func extractJSON(s string) string {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
