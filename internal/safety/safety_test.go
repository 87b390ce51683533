package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBashCommand(t *testing.T) {
	tests := []struct {
		action string
		want   string
		wantOk bool
	}{
		{"Bash(git push)", "git push", true},
		{"Bash(git push:*)", "git push", true},
		{"  Bash(git status)  ", "git status", true},
		{"Read(file.go)", "", false},
		{"git push", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			got, ok := ExtractBashCommand(tc.action)
			assert.Equal(t, tc.wantOk, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestSplitShellCommands(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"git status && git push", []string{"git status ", " git push"}},
		{"git status || git push", []string{"git status ", " git push"}},
		{"git status; git push", []string{"git status", " git push"}},
		{"git status | cat", []string{"git status ", " cat"}},
		{"git status & git push", []string{"git status ", " git push"}},
		{"git status\ngit push", []string{"git status", "git push"}},
		{"git status", []string{"git status"}},
	}
	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			assert.Equal(t, tc.want, splitShellCommands(tc.command))
		})
	}
}

func TestCheckBlockedGitOperation_AllowedGitSubcommands(t *testing.T) {
	for _, sub := range allowedGitSubcommands {
		action := "Bash(git " + sub + ")"
		t.Run(sub, func(t *testing.T) {
			_, blocked := CheckBlockedGitOperation(action)
			assert.False(t, blocked, "git %s should be allowed", sub)
		})
	}
}

func TestCheckBlockedGitOperation_BlockedGitSubcommands(t *testing.T) {
	tests := []string{
		"Bash(git push)",
		"Bash(git push:*)",
		"Bash(git rebase -i HEAD~3)",
		"Bash(git reset --hard)",
		"Bash(git clone https://example.com/x)",
		"Bash(git fetch)",
		"Bash(git merge main)",
		"Bash(git checkout -b foo)",
		"git push origin main",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			reason, blocked := CheckBlockedGitOperation(action)
			assert.True(t, blocked)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCheckBlockedGitOperation_NewlineSeparatedCommands(t *testing.T) {
	reason, blocked := CheckBlockedGitOperation("Bash(git status\ngit push:*)")
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)
}

func TestCheckBlockedGitOperation_TrailingArgAfterShellC(t *testing.T) {
	// The quoted string is the executed command; "trailingarg" becomes
	// $0 and must not mask the push inside the quotes.
	reason, blocked := CheckBlockedGitOperation(`Bash(bash -c "git push" trailingarg:*)`)
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)
}

func TestCheckBlockedGitOperation_AllowedChains(t *testing.T) {
	tests := []string{
		"Bash(git status && git diff:*)",
		"Bash(env git diff:*)",
		"Bash(cargo test:*)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			_, blocked := CheckBlockedGitOperation(action)
			assert.False(t, blocked)
		})
	}
}

func TestCheckBlockedGitOperation_GitSubstringIsNotGit(t *testing.T) {
	// "git" appearing inside another word must never be treated as the
	// git binary.
	tests := []string{
		"Bash(widget build:*)",
		"Bash(digit --count 3:*)",
		"Bash(legit scan:*)",
		"Bash(gitk:*)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			_, blocked := CheckBlockedGitOperation(action)
			assert.False(t, blocked)
		})
	}
}

func TestCheckBlockedGitOperation_NonGitToolsAlwaysAllowed(t *testing.T) {
	tests := []string{
		"Read(file.go)",
		"Edit(file.go)",
		"Write(file.go)",
		"Glob(**/*.go)",
		"Grep(pattern)",
		"Bash(ls -la)",
		"Bash(npm test)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			_, blocked := CheckBlockedGitOperation(action)
			assert.False(t, blocked)
		})
	}
}

func TestCheckBlockedGitOperation_BareGitBlocked(t *testing.T) {
	reason, blocked := CheckBlockedGitOperation("Bash(git)")
	assert.True(t, blocked)
	assert.Contains(t, reason, "bare")
}

func TestCheckBlockedGitOperation_FlagsBeforeSubcommandBlocked(t *testing.T) {
	tests := []string{
		"Bash(git -C /path push)",
		"Bash(git --no-pager push)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			reason, blocked := CheckBlockedGitOperation(action)
			assert.True(t, blocked)
			assert.Contains(t, reason, "flags before subcommand")
		})
	}
}

func TestCheckBlockedGitOperation_ChainedCommands(t *testing.T) {
	// A single allowed subcommand chained with a blocked one must still block.
	reason, blocked := CheckBlockedGitOperation("Bash(git status && git push)")
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)
}

func TestCheckBlockedGitOperation_EnvVarPrefix(t *testing.T) {
	reason, blocked := CheckBlockedGitOperation("Bash(GIT_TRACE=1 git push)")
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)

	_, blocked = CheckBlockedGitOperation("Bash(GIT_TRACE=1 git status)")
	assert.False(t, blocked)
}

func TestCheckBlockedGitOperation_ShellWrapperPrefix(t *testing.T) {
	tests := []string{
		"Bash(env git push)",
		"Bash(command git push)",
		"Bash(sudo git push)",
		"Bash(nohup git push)",
		"Bash(nice git push)",
		"Bash(env -i git push)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			reason, blocked := CheckBlockedGitOperation(action)
			assert.True(t, blocked)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCheckBlockedGitOperation_AbsoluteAndRelativePaths(t *testing.T) {
	tests := []string{
		"Bash(/usr/bin/git push)",
		"Bash(./git push)",
		"Bash(../bin/git push)",
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			reason, blocked := CheckBlockedGitOperation(action)
			assert.True(t, blocked)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCheckBlockedGitOperation_NestedShellInterpreter(t *testing.T) {
	tests := []string{
		`Bash(sh -c 'git push')`,
		`Bash(bash -lc "git push")`,
		`Bash(env sh -c "git push")`,
	}
	for _, action := range tests {
		t.Run(action, func(t *testing.T) {
			reason, blocked := CheckBlockedGitOperation(action)
			assert.True(t, blocked)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCheckBlockedGitOperation_NestedShellInterpreterAllowed(t *testing.T) {
	_, blocked := CheckBlockedGitOperation(`Bash(sh -c 'git status')`)
	assert.False(t, blocked)
}

func TestCheckBlockedGitOperation_ShellCOnlyFirstArgIsCommand(t *testing.T) {
	// In POSIX sh -c, only the first argument after -c is the command
	// string; "push" here becomes $0, not part of the executed command,
	// so the extracted inner command is bare "git" — blocked as a bare
	// git invocation, not as "git push".
	reason, blocked := CheckBlockedGitOperation("Bash(/usr/bin/bash -c git push)")
	assert.True(t, blocked)
	assert.Contains(t, reason, "bare")
}

func TestCheckCommandForBlockedGit_DeepNestingBlocked(t *testing.T) {
	// Exercise the recursion guard directly: beyond maxShellNestingDepth,
	// even an otherwise-allowed command is blocked.
	reason, blocked := checkCommandForBlockedGit("git status", maxShellNestingDepth+1)
	assert.True(t, blocked)
	assert.Contains(t, reason, "nesting too deep")
}

func TestIsEnvVarAssignment(t *testing.T) {
	assert.True(t, isEnvVarAssignment("FOO=bar"))
	assert.True(t, isEnvVarAssignment("GIT_TRACE=1"))
	assert.False(t, isEnvVarAssignment("=bar"))
	assert.False(t, isEnvVarAssignment("git"))
	assert.False(t, isEnvVarAssignment("FOO-BAR=baz"))
}

func TestIsGitBinary(t *testing.T) {
	assert.True(t, isGitBinary("git"))
	assert.True(t, isGitBinary("/usr/bin/git"))
	assert.True(t, isGitBinary("./git"))
	assert.False(t, isGitBinary("gitk"))
	assert.False(t, isGitBinary("github"))
}

func TestExtractShellInterpreterCommand(t *testing.T) {
	tests := []struct {
		command string
		want    string
		wantOk  bool
	}{
		{`sh -c 'git push'`, "git push", true},
		{`bash -lc "git status && git push"`, "git status && git push", true},
		{`env sh -c "git push"`, "git push", true},
		{`/usr/bin/bash -c git push`, "git", true},
		{"git push", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			got, ok := extractShellInterpreterCommand(tc.command)
			assert.Equal(t, tc.wantOk, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
