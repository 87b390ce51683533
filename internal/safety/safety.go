// Package safety validates a Reviewee permission request's action
// string against the git-operation allowlist: it decides whether a
// Bash/git action that the user has granted is still safe to run in
// local mode, where a blocked action fails the rally.
package safety

import (
	"fmt"
	"strings"
)

// allowedGitSubcommands are the read-only or local-only git
// subcommands that pass the check once the user grants permission.
var allowedGitSubcommands = []string{
	"status", "diff", "add", "commit", "log", "show", "branch", "switch", "stash",
}

// shellWrappers can prefix the actual binary in an invocation, e.g.
// "env git push", "sudo git push".
var shellWrappers = []string{
	"env", "command", "builtin", "exec", "nohup", "nice", "sudo", "xargs",
}

// shellInterpreters can execute an arbitrary command string via -c.
var shellInterpreters = []string{"sh", "bash", "zsh", "dash", "ksh", "fish"}

// maxShellNestingDepth bounds recursion into nested shell
// interpreter invocations (sh -c 'bash -c "..."').
const maxShellNestingDepth = 3

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// basename returns the token after the last '/', or the whole token
// if it has none — used to identify a binary regardless of the path
// used to invoke it.
func basename(token string) string {
	if idx := strings.LastIndexByte(token, '/'); idx != -1 {
		return token[idx+1:]
	}
	return token
}

func isEnvVarAssignment(token string) bool {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return false
	}
	for _, c := range token[:eq] {
		if !(c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func isGitBinary(token string) bool {
	return basename(token) == "git"
}

func isShellInterpreter(token string) bool {
	return contains(shellInterpreters, basename(token))
}

// ExtractBashCommand extracts the inner shell command from a
// `Bash(cmd:*)` or `Bash(cmd)` tool-action pattern. The second return
// value is false if action doesn't match either form.
func ExtractBashCommand(action string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(action), "Bash(")
	if !ok {
		return "", false
	}
	inner, ok := strings.CutSuffix(rest, ")")
	if !ok {
		return "", false
	}
	inner = strings.TrimSuffix(inner, ":*")
	return inner, true
}

// splitShellCommands splits command on shell separators (&&, ||, ;,
// |, &, newline), checking two-character separators before
// one-character ones.
func splitShellCommands(command string) []string {
	var results []string
	start := 0
	i := 0
	for i < len(command) {
		isDouble := i+1 < len(command) &&
			((command[i] == '&' && command[i+1] == '&') || (command[i] == '|' && command[i+1] == '|'))
		switch {
		case isDouble:
			results = append(results, command[start:i])
			i += 2
			start = i
		case command[i] == ';' || command[i] == '|' || command[i] == '&' || command[i] == '\n':
			results = append(results, command[start:i])
			i++
			start = i
		default:
			i++
		}
	}
	results = append(results, command[start:])
	return results
}

// extractShellInterpreterCommand extracts the command string from a
// shell-interpreter invocation with -c, handling wrapper prefixes,
// combined flags (-lc, -ic), and quoted/unquoted arguments. Per
// POSIX `sh -c cmd_string [arg0 ...]` semantics, only the first
// argument after -c is the executed command.
func extractShellInterpreterCommand(command string) (string, bool) {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return "", false
	}

	i := 0
	for i < len(tokens) && isEnvVarAssignment(tokens[i]) {
		i++
	}

	for i < len(tokens) {
		if !contains(shellWrappers, basename(tokens[i])) {
			break
		}
		i++
		for i < len(tokens) && strings.HasPrefix(tokens[i], "-") {
			i++
			if i < len(tokens) && !isShellInterpreter(tokens[i]) && !isGitBinary(tokens[i]) && !strings.HasPrefix(tokens[i], "-") {
				i++
			}
		}
		for i < len(tokens) && isEnvVarAssignment(tokens[i]) {
			i++
		}
	}

	if i >= len(tokens) {
		return "", false
	}
	if !isShellInterpreter(tokens[i]) {
		return "", false
	}
	i++

	foundC := false
	for i < len(tokens) && strings.HasPrefix(tokens[i], "-") {
		flag := tokens[i]
		if flag == "-c" || (len(flag) >= 2 && strings.HasPrefix(flag, "-") && !strings.HasPrefix(flag, "--") && strings.HasSuffix(flag, "c")) {
			foundC = true
			i++
			break
		}
		i++
	}

	if !foundC || i >= len(tokens) {
		return "", false
	}

	first := tokens[i]
	if first == "" {
		return "", false
	}
	firstChar := first[0]

	if firstChar == '\'' || firstChar == '"' {
		if len(first) > 1 && first[len(first)-1] == firstChar {
			return first[1 : len(first)-1], true
		}
		end := i + 1
		for end < len(tokens) && !strings.HasSuffix(tokens[end], string(firstChar)) {
			end++
		}
		if end < len(tokens) {
			joined := strings.Join(tokens[i:end+1], " ")
			return joined[1 : len(joined)-1], true
		}
		joined := strings.Join(tokens[i:], " ")
		return joined[1:], true
	}

	return first, true
}

// findGitInTokens locates the git binary and its subcommand index
// within tokens, skipping leading env-var assignments and shell
// wrapper commands (and their own flags). hasSub reports whether a
// subcommand token follows git.
func findGitInTokens(tokens []string) (gitIdx int, subIdx int, hasSub bool, found bool) {
	i := 0
	for i < len(tokens) && isEnvVarAssignment(tokens[i]) {
		i++
	}

	for i < len(tokens) {
		if !contains(shellWrappers, basename(tokens[i])) {
			break
		}
		i++
		for i < len(tokens) && strings.HasPrefix(tokens[i], "-") {
			i++
			if i < len(tokens) && !isGitBinary(tokens[i]) && !strings.HasPrefix(tokens[i], "-") {
				i++
			}
		}
		for i < len(tokens) && isEnvVarAssignment(tokens[i]) {
			i++
		}
	}

	if i >= len(tokens) {
		return 0, 0, false, false
	}
	if !isGitBinary(tokens[i]) {
		return 0, 0, false, false
	}
	if i+1 < len(tokens) {
		return i, i + 1, true, true
	}
	return i, 0, false, true
}

// CheckBlockedGitOperation validates action (a tool-action string
// such as "Bash(git push)" or a raw "git push") and returns a
// non-empty reason if it contains a blocked git operation. A non-Bash,
// non-git action (Read, Edit, Glob, ...) is always allowed — it
// returns "", false.
func CheckBlockedGitOperation(action string) (reason string, blocked bool) {
	command, ok := ExtractBashCommand(action)
	if !ok {
		trimmed := strings.TrimSpace(action)
		if strings.HasPrefix(trimmed, "git ") || trimmed == "git" {
			command = trimmed
		} else {
			return "", false
		}
	}

	if command == "" {
		return "", false
	}

	return checkCommandForBlockedGit(command, 0)
}

func checkCommandForBlockedGit(command string, depth int) (string, bool) {
	if depth > maxShellNestingDepth {
		return "shell command nesting too deep, blocked for safety", true
	}

	for _, cmd := range splitShellCommands(command) {
		trimmed := strings.TrimSpace(cmd)
		if trimmed == "" {
			continue
		}

		tokens := strings.Fields(trimmed)
		if len(tokens) == 0 {
			continue
		}

		if _, subIdx, hasSub, found := findGitInTokens(tokens); found {
			if !hasSub {
				return "bare 'git' command without subcommand is not allowed", true
			}
			subcommand := tokens[subIdx]

			if strings.HasPrefix(subcommand, "-") {
				return fmt.Sprintf("git command with flags before subcommand is not allowed: %q", trimmed), true
			}

			if !contains(allowedGitSubcommands, subcommand) {
				return fmt.Sprintf("git subcommand %q is not in the allowed list (%v)", subcommand, allowedGitSubcommands), true
			}
		}

		if inner, ok := extractShellInterpreterCommand(trimmed); ok {
			if reason, blocked := checkCommandForBlockedGit(inner, depth+1); blocked {
				return reason, true
			}
		}
	}

	return "", false
}
