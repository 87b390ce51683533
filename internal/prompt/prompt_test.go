package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/octorus/octorus/internal/config"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() *rally.Context {
	return &rally.Context{
		Repo:     "owner/repo",
		PRNumber: 123,
		PRTitle:  "Add feature",
		PRBody:   "This adds a new feature",
		Diff:     "+added line\n-removed line",
	}
}

func TestRender_SubstitutesKnownKeys(t *testing.T) {
	template := "Hello {{name}}, you have {{count}} messages."
	got := render(template, map[string]string{"name": "Alice", "count": "5"})
	assert.Equal(t, "Hello Alice, you have 5 messages.", got)
}

func TestRender_LeavesMissingKeysLiteral(t *testing.T) {
	template := "Hello {{name}}, {{unknown}} variable."
	got := render(template, map[string]string{"name": "Bob"})
	assert.Equal(t, "Hello Bob, {{unknown}} variable.", got)
}

func TestLoader_ResolveSource_EmbeddedByDefault(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	source, _ := loader.ResolveSource(ReviewerFile)
	assert.Equal(t, SourceEmbedded, source)
}

func TestLoader_ResolveSource_LocalBeatsEverything(t *testing.T) {
	root := t.TempDir()
	localDir := filepath.Join(root, ".octorus", "prompts")
	require.NoError(t, os.MkdirAll(localDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, ReviewerFile), []byte("local template"), 0o644))

	cfg := config.Default()
	cfg.AI.PromptDir = filepath.Join(root, "custom-prompts")
	require.NoError(t, os.MkdirAll(cfg.AI.PromptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.AI.PromptDir, ReviewerFile), []byte("prompt_dir template"), 0o644))

	loader := NewLoader(&cfg.AI, root)
	source, path := loader.ResolveSource(ReviewerFile)
	assert.Equal(t, SourceLocal, source)
	assert.Equal(t, filepath.Join(localDir, ReviewerFile), path)
}

func TestLoader_ResolveSource_PromptDirBeatsGlobal(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.AI.PromptDir = filepath.Join(root, "custom-prompts")
	require.NoError(t, os.MkdirAll(cfg.AI.PromptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.AI.PromptDir, ReviewerFile), []byte("prompt_dir template"), 0o644))

	loader := NewLoader(&cfg.AI, root)
	source, _ := loader.ResolveSource(ReviewerFile)
	assert.Equal(t, SourcePromptDir, source)
}

func TestLoader_PromptDir_RelativeResolvedAgainstProjectRoot(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.AI.PromptDir = "custom-prompts"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "custom-prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "custom-prompts", ReviewerFile), []byte("x"), 0o644))

	loader := NewLoader(&cfg.AI, root)
	source, path := loader.ResolveSource(ReviewerFile)
	assert.Equal(t, SourcePromptDir, source)
	assert.Equal(t, filepath.Join(root, "custom-prompts", ReviewerFile), path)
}

func TestLoadReviewerPrompt_SubstitutesContext(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()

	prompt := loader.LoadReviewerPrompt(ctx, 1)

	assert.Contains(t, prompt, "owner/repo")
	assert.Contains(t, prompt, "123")
	assert.Contains(t, prompt, "Add feature")
	assert.Contains(t, prompt, "This adds a new feature")
	assert.Contains(t, prompt, "+added line")
	assert.Contains(t, prompt, "iteration 1")
}

func TestLoadReviewerPrompt_EmptyBodyFallsBackToPlaceholder(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()
	ctx.PRBody = ""

	prompt := loader.LoadReviewerPrompt(ctx, 1)
	assert.Contains(t, prompt, "No description provided")
}

func TestLoadRevieweePrompt_IncludesCommentsAndBlockingIssues(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()

	out := review.Output{
		Action:  review.RequestChanges,
		Summary: "Please fix the issues",
		InlineComments: []review.InlineComment{
			{Path: "src/main.go", Line: 10, Body: "Missing error handling", Severity: review.Major},
		},
		BlockingIssues: []string{"Fix error handling"},
	}

	prompt := loader.LoadRevieweePrompt(ctx, out, 1)

	assert.Contains(t, prompt, "owner/repo")
	assert.Contains(t, prompt, "123")
	assert.Contains(t, prompt, "Please fix the issues")
	assert.Contains(t, prompt, "RequestChanges")
	assert.Contains(t, prompt, "src/main.go:10")
	assert.Contains(t, prompt, "Missing error handling")
	assert.Contains(t, prompt, "Fix error handling")
}

func TestLoadRevieweePrompt_ExternalComments(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()
	ctx.ExternalComments = []rally.ExternalComment{
		{AuthorLogin: "copilot[bot]", Path: "src/main.go", Line: 42, Body: "Consider using a more descriptive variable name"},
		{AuthorLogin: "coderabbitai[bot]", Body: "General nit"},
	}

	out := review.Output{Action: review.Comment, Summary: "looks fine"}
	prompt := loader.LoadRevieweePrompt(ctx, out, 1)

	assert.Contains(t, prompt, "External Tool Feedback")
	assert.Contains(t, prompt, "copilot[bot]")
	assert.Contains(t, prompt, "src/main.go:42")
	assert.Contains(t, prompt, "coderabbitai[bot]")
	assert.Contains(t, prompt, "general")
}

func TestLoadRevieweePrompt_NoBlockingIssuesShowsNone(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()
	out := review.Output{Action: review.Comment, Summary: "ok"}

	prompt := loader.LoadRevieweePrompt(ctx, out, 1)
	assert.Contains(t, prompt, "None")
}

func TestLoadRevieweePrompt_LocalModeForbidsGitWrites(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()
	ctx.LocalMode = true
	out := review.Output{Action: review.RequestChanges, Summary: "x"}

	prompt := loader.LoadRevieweePrompt(ctx, out, 1)
	assert.Contains(t, prompt, "LOCAL-ONLY session")
	assert.Contains(t, prompt, "Do NOT run any git write commands")
}

func TestLoadRereviewPrompt(t *testing.T) {
	cfg := config.Default()
	loader := NewLoader(&cfg.AI, t.TempDir())
	ctx := testContext()

	prompt := loader.LoadRereviewPrompt(ctx, 2, "fixed the null check", "+fixed")
	assert.Contains(t, prompt, "iteration 2")
	assert.Contains(t, prompt, "fixed the null check")
	assert.Contains(t, prompt, "+fixed")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "he...", truncate("hello world", 5))
	assert.Equal(t, "hel", truncate("hello", 3))
}
