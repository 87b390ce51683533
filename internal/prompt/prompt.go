// Package prompt resolves and renders the Reviewer/Reviewee/re-review
// prompt templates via a four-tier search order:
// project-local .octorus/prompts/ -> config.prompt_dir ->
// XDG global config home -> embedded default.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/octorus/octorus/internal/config"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
)

//go:embed defaults/reviewer.md defaults/reviewee.md defaults/rereview.md
var embeddedDefaults embed.FS

const (
	ReviewerFile = "reviewer.md"
	RevieweeFile = "reviewee.md"
	RereviewFile = "rereview.md"
)

func defaultFor(filename string) string {
	data, err := embeddedDefaults.ReadFile("defaults/" + filename)
	if err != nil {
		// Every filename this package resolves is one of the three
		// embedded files above; a missing one is a build-time defect.
		panic(fmt.Sprintf("prompt: no embedded default for %q: %v", filename, err))
	}
	return string(data)
}

// Source identifies which tier a resolved prompt template came from.
type Source int

const (
	SourceLocal Source = iota
	SourcePromptDir
	SourceGlobal
	SourceEmbedded
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourcePromptDir:
		return "prompt_dir"
	case SourceGlobal:
		return "global"
	default:
		return "embedded"
	}
}

// Loader resolves prompt templates for one project root, caching
// nothing — each Load call re-checks the filesystem so that editing a
// project's .octorus/prompts/ file takes effect on the next
// iteration without restarting the rally.
type Loader struct {
	localDir  string // project_root/.octorus/prompts, "" if it doesn't exist
	promptDir string // from config.AI.PromptDir, resolved against project_root
	globalDir string // XDG config home / octorus / prompts
}

// NewLoader builds a Loader for projectRoot using cfg's prompt_dir
// override (resolved relative to projectRoot if not already absolute).
func NewLoader(cfg *config.AIConfig, projectRoot string) *Loader {
	l := &Loader{
		globalDir: filepath.Join(config.ConfigDir(), "prompts"),
	}

	local := filepath.Join(projectRoot, ".octorus", "prompts")
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		l.localDir = local
	}

	if cfg.PromptDir != "" {
		dir := cfg.PromptDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(projectRoot, dir)
		}
		l.promptDir = dir
	}

	return l
}

// ResolveSource reports which tier would supply filename, without
// reading its contents.
func (l *Loader) ResolveSource(filename string) (Source, string) {
	if l.localDir != "" {
		path := filepath.Join(l.localDir, filename)
		if fileExists(path) {
			return SourceLocal, path
		}
	}
	if l.promptDir != "" {
		path := filepath.Join(l.promptDir, filename)
		if fileExists(path) {
			return SourcePromptDir, path
		}
	}
	if l.globalDir != "" {
		path := filepath.Join(l.globalDir, filename)
		if fileExists(path) {
			return SourceGlobal, path
		}
	}
	return SourceEmbedded, ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadTemplate resolves filename through the four tiers, falling back
// to the embedded default.
func (l *Loader) loadTemplate(filename string) string {
	source, path := l.ResolveSource(filename)
	if source == SourceEmbedded {
		return defaultFor(filename)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// A file that existed at ResolveSource time but failed to read
		// (permissions, race) degrades to the embedded default rather
		// than failing the rally over a prompt customization.
		return defaultFor(filename)
	}
	return string(data)
}

// render replaces every "{{key}}" in template with vars[key]. Keys
// absent from vars are left as literal "{{key}}" text — this is a
// hand-rolled replacer, not text/template, specifically because
// text/template errors (or silently drops, depending on option) on an
// undefined key, which doesn't match this rule.
func render(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// LoadReviewerPrompt renders the reviewer.md template for one
// iteration.
func (l *Loader) LoadReviewerPrompt(ctx *rally.Context, iteration int) string {
	template := l.loadTemplate(ReviewerFile)

	prBody := ctx.PRBody
	if prBody == "" {
		prBody = "(No description provided)"
	}

	vars := map[string]string{
		"repo":      ctx.Repo,
		"pr_number": fmt.Sprintf("%d", ctx.PRNumber),
		"pr_title":  ctx.PRTitle,
		"pr_body":   prBody,
		"diff":      ctx.Diff,
		"iteration": fmt.Sprintf("%d", iteration),
	}
	return render(template, vars)
}

const maxExternalCommentBodyLen = 200

// LoadRevieweePrompt renders the reviewee.md template, describing the
// Reviewer's verdict and any external (bot) comments gathered from
// the forge.
func (l *Loader) LoadRevieweePrompt(ctx *rally.Context, out review.Output, iteration int) string {
	template := l.loadTemplate(RevieweeFile)

	var commentLines []string
	for _, c := range out.InlineComments {
		commentLines = append(commentLines, fmt.Sprintf("- [%s] %s:%d: %s", strings.ToUpper(string(c.Severity)), c.Path, c.Line, c.Body))
	}
	commentsText := strings.Join(commentLines, "\n")

	blockingText := "None"
	if len(out.BlockingIssues) > 0 {
		var lines []string
		for _, issue := range out.BlockingIssues {
			lines = append(lines, "- "+issue)
		}
		blockingText = strings.Join(lines, "\n")
	}

	externalSection := ""
	if len(ctx.ExternalComments) > 0 {
		var lines []string
		for _, c := range ctx.ExternalComments {
			location := "general"
			if c.Path != "" {
				if c.Line != 0 {
					location = fmt.Sprintf("%s:%d", c.Path, c.Line)
				} else {
					location = c.Path
				}
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", c.AuthorLogin, location, truncate(c.Body, maxExternalCommentBodyLen)))
		}
		externalSection = "\n\n## External Tool Feedback\n\n" +
			"The following comments are from external code review tools (Copilot, CodeRabbit, etc.):\n\n" +
			strings.Join(lines, "\n") +
			"\n\nNote: Address these comments if they are relevant and valid. Don't wait for more feedback from these tools.\n"
	}

	var reviewAction string
	switch out.Action {
	case review.Approve:
		reviewAction = "Approve"
	case review.RequestChanges:
		reviewAction = "RequestChanges"
	case review.Comment:
		reviewAction = "Comment"
	}

	var gitOperations string
	if ctx.LocalMode {
		gitOperations = "## Git Operations\n\n" +
			"This is a LOCAL-ONLY session. Do NOT run any git write commands " +
			"(add, commit, push, stash, switch, branch, merge, rebase, reset, etc.).\n" +
			"Only read-only git commands (status, diff, log, show) are allowed.\n" +
			"Edit files directly — the user will handle staging and committing."
	} else {
		gitOperations = "## Git Operations\n\n" +
			"After making changes, you MUST commit your changes locally:\n\n" +
			"1. Check status: `git status`\n" +
			"2. Stage files: `git add <files>`\n" +
			"3. Commit: `git commit -m \"fix: <description>\"`\n\n" +
			"NOTE: Do NOT push changes. The user will review and push manually.\n" +
			"If git push is needed and allowed, it will be explicitly permitted via config."
	}

	vars := map[string]string{
		"repo":              ctx.Repo,
		"pr_number":         fmt.Sprintf("%d", ctx.PRNumber),
		"pr_title":          ctx.PRTitle,
		"iteration":         fmt.Sprintf("%d", iteration),
		"review_summary":    out.Summary,
		"review_action":     reviewAction,
		"review_comments":   commentsText,
		"blocking_issues":   blockingText,
		"external_comments": externalSection,
		"git_operations":    gitOperations,
	}
	return render(template, vars)
}

// LoadRereviewPrompt renders the rereview.md template for the
// Reviewer invocation that opens each iteration after the first,
// after the Reviewee has made changes.
func (l *Loader) LoadRereviewPrompt(ctx *rally.Context, iteration int, changesSummary, updatedDiff string) string {
	template := l.loadTemplate(RereviewFile)

	vars := map[string]string{
		"repo":            ctx.Repo,
		"pr_number":       fmt.Sprintf("%d", ctx.PRNumber),
		"pr_title":        ctx.PRTitle,
		"iteration":       fmt.Sprintf("%d", iteration),
		"changes_summary": changesSummary,
		"updated_diff":    updatedDiff,
	}
	return render(template, vars)
}
