package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/octorus/octorus/internal/ai"
	"github.com/octorus/octorus/internal/config"
	"github.com/octorus/octorus/internal/diff"
	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/forge"
	"github.com/octorus/octorus/internal/logging"
	"github.com/octorus/octorus/internal/orchestrator"
	"github.com/octorus/octorus/internal/prompt"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/session"
	"github.com/octorus/octorus/internal/vcs"
)

var rallyCmd = &cobra.Command{
	Use:   "rally",
	Short: "Run a Reviewer/Reviewee rally against a pull request or a local working tree",
	Long: `rally drives a Reviewer agent and a Reviewee agent through a
review-then-fix loop: the Reviewer critiques the diff, the Reviewee
addresses the findings, and the cycle repeats until the Reviewer
approves, the iteration cap is hit, or you abort.

With --repo and --pr, the rally reads and posts to a real GitHub pull
request. With --local, it runs entirely against the current working
tree and never talks to a forge.`,
	RunE: runRally,
}

var (
	rallyRepo          string
	rallyPR            int
	rallyLocal         bool
	rallyWorkingDir    string
	rallyBaseBranch    string
	rallyAutoPost      bool
	rallyMaxIterations int
	rallyTimeoutSecs   int
	rallyReviewer      string
	rallyReviewee      string
	rallyToken         string
	rallyFresh         bool
	rallyLogLevel      string
)

func init() {
	rootCmd.AddCommand(rallyCmd)

	rallyCmd.Flags().StringVar(&rallyRepo, "repo", "", "GitHub repository as owner/name")
	rallyCmd.Flags().IntVar(&rallyPR, "pr", 0, "Pull request number")
	rallyCmd.Flags().BoolVar(&rallyLocal, "local", false, "Run against the local working tree only, never talking to a forge")
	rallyCmd.Flags().StringVar(&rallyWorkingDir, "working-dir", "", "Working tree to diff against (defaults to the current directory when available)")
	rallyCmd.Flags().StringVar(&rallyBaseBranch, "base-branch", "", "Base branch to diff against (auto-detected from the working tree when empty)")
	rallyCmd.Flags().BoolVar(&rallyAutoPost, "auto-post", false, "Post reviews and fix summaries without a confirmation prompt")
	rallyCmd.Flags().IntVar(&rallyMaxIterations, "max-iterations", 0, "Override the configured max iteration count")
	rallyCmd.Flags().IntVar(&rallyTimeoutSecs, "timeout", 0, "Override the configured per-agent-call timeout, in seconds")
	rallyCmd.Flags().StringVar(&rallyReviewer, "reviewer", "", "Override the Reviewer backend (claude or codex)")
	rallyCmd.Flags().StringVar(&rallyReviewee, "reviewee", "", "Override the Reviewee backend (claude or codex)")
	rallyCmd.Flags().StringVar(&rallyToken, "token", "", "GitHub token (defaults to $GITHUB_TOKEN)")
	rallyCmd.Flags().BoolVar(&rallyFresh, "fresh", false, "Discard any previous session record for this repo/PR before starting")
	rallyCmd.Flags().StringVar(&rallyLogLevel, "log-level", logging.LevelInfo, "Debug log level (DEBUG, INFO, WARN, ERROR)")
}

func runRally(cmd *cobra.Command, args []string) error {
	if !rallyLocal && (rallyRepo == "" || rallyPR == 0) {
		return fmt.Errorf("either --local, or both --repo and --pr, are required")
	}

	cfg := config.Get()
	applyRallyFlagOverrides(cmd, &cfg.AI)

	if cfg.AI.Reviewer != "" && !config.IsValidBackend(cfg.AI.Reviewer) {
		return fmt.Errorf("invalid --reviewer backend %q: valid options are %s", cfg.AI.Reviewer, strings.Join(config.ValidBackends(), ", "))
	}
	if cfg.AI.Reviewee != "" && !config.IsValidBackend(cfg.AI.Reviewee) {
		return fmt.Errorf("invalid --reviewee backend %q: valid options are %s", cfg.AI.Reviewee, strings.Join(config.ValidBackends(), ", "))
	}

	workingDir := rallyWorkingDir
	if workingDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			workingDir = cwd
		}
	}

	var fg forge.Forge
	if !rallyLocal {
		token := rallyToken
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		fg = forge.New(token)
	}

	var git *vcs.Git
	if workingDir != "" {
		git = vcs.New()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rctx, err := buildRallyContext(ctx, fg, git, workingDir)
	if err != nil {
		return fmt.Errorf("build rally context: %w", err)
	}

	reviewerBackend, err := ai.NewBackend(cfg.AI.Reviewer, &cfg.AI)
	if err != nil {
		return fmt.Errorf("construct reviewer backend: %w", err)
	}
	revieweeBackend, err := ai.NewBackend(cfg.AI.Reviewee, &cfg.AI)
	if err != nil {
		return fmt.Errorf("construct reviewee backend: %w", err)
	}

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	store, err := session.NewFileStore(cacheDir, rallyStoreKey(rctx), rctx.PRNumber)
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	if rallyFresh {
		if err := store.Cleanup(); err != nil {
			return fmt.Errorf("discard previous session: %w", err)
		}
	} else if prev, err := store.ReadSession(); err == nil {
		fmt.Printf("Previous rally record found (state %s, iteration %d); starting a new rally over it. Use --fresh to discard it first.\n",
			prev.State, prev.Iteration)
	}

	logger, err := logging.NewLogger(filepath.Join(store.Root(), "logs"), rallyLogLevel)
	if err != nil {
		return fmt.Errorf("create rally logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	prompts := prompt.NewLoader(&cfg.AI, workingDir)

	events := event.NewChannel(0)
	commands := event.NewCommandChannel(0)

	orch := orchestrator.New(orchestrator.Options{
		Repo:     rctx.Repo,
		PRNumber: rctx.PRNumber,
		Config:   &cfg.AI,
		Reviewer: ai.NewCLIAgent(reviewerBackend),
		Reviewee: ai.NewCLIAgent(revieweeBackend),
		Store:    store,
		Prompts:  prompts,
		Logger:   logger.WithSession(fmt.Sprintf("%s_%d", rallyStoreKey(rctx), rctx.PRNumber)),
		Forge:    fg,
		Git:      git,
		Events:   events,
		Commands: commands,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		runEventLoop(events, commands)
	}()

	result := orch.Run(ctx, rctx)
	close(events)
	<-done

	if history, err := store.ReadHistory(); err == nil && len(history) > 0 {
		fmt.Printf("\nRecorded %d history entr%s under %s\n", len(history), pluralY(len(history)), store.Root())
	}

	return reportRallyResult(result)
}

// applyRallyFlagOverrides layers explicitly-set CLI flags on top of
// the loaded config, mirroring cobra's "flags override config"
// convention (cmd.Flags().Changed gates which fields are replaced).
func applyRallyFlagOverrides(cmd *cobra.Command, aiCfg *config.AIConfig) {
	if cmd.Flags().Changed("auto-post") {
		aiCfg.AutoPost = rallyAutoPost
	}
	if cmd.Flags().Changed("max-iterations") {
		aiCfg.MaxIterations = rallyMaxIterations
	}
	if cmd.Flags().Changed("timeout") {
		aiCfg.TimeoutSecs = rallyTimeoutSecs
	}
	if cmd.Flags().Changed("reviewer") {
		aiCfg.Reviewer = rallyReviewer
	}
	if cmd.Flags().Changed("reviewee") {
		aiCfg.Reviewee = rallyReviewee
	}
}

// rallyStoreKey picks the identifier under which the session store is
// rooted: the repo slug for a forge rally, or the working tree's
// directory name for a purely local one (the full path would be
// rejected as a directory component).
func rallyStoreKey(rctx *rally.Context) string {
	if rctx.Repo != "" {
		return rctx.Repo
	}
	base := filepath.Base(rctx.WorkingDir)
	if base == "." || base == string(filepath.Separator) {
		return "local"
	}
	safe := strings.Map(func(c rune) rune {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '_' || c == '-' || c == '.' {
			return c
		}
		return '-'
	}, base)
	return "local_" + safe
}

// buildRallyContext seeds the initial rally.Context: PR metadata and
// diff for a forge rally, or the working tree's current diff for a
// local one.
func buildRallyContext(ctx context.Context, fg forge.Forge, git *vcs.Git, workingDir string) (*rally.Context, error) {
	rctx := &rally.Context{
		Repo:       rallyRepo,
		PRNumber:   rallyPR,
		WorkingDir: workingDir,
		LocalMode:  rallyLocal,
		BaseBranch: rallyBaseBranch,
	}

	if rctx.BaseBranch == "" && git != nil {
		rctx.BaseBranch = git.DetectBaseBranch(ctx, workingDir)
	}
	if rctx.BaseBranch == "" {
		rctx.BaseBranch = "main"
	}

	if !rallyLocal {
		meta, err := fg.FetchPR(ctx, rallyRepo, rallyPR)
		if err != nil {
			return nil, fmt.Errorf("fetch pull request: %w", err)
		}
		rctx.PRTitle = meta.Title
		rctx.PRBody = meta.Body
		rctx.HeadSHA = meta.HeadSHA
		if meta.BaseBranch != "" {
			rctx.BaseBranch = meta.BaseBranch
		}
	}

	forgeFallback := func(c context.Context) (string, error) {
		if fg == nil {
			return "", fmt.Errorf("no forge configured to fetch a PR diff")
		}
		return fg.FetchPRDiff(c, rallyRepo, rallyPR)
	}

	var diffText string
	var err error
	switch {
	case git != nil:
		diffText, err = git.CurrentDiff(ctx, workingDir, rctx.BaseBranch, rallyLocal, forgeFallback)
	case fg != nil:
		diffText, err = fg.FetchPRDiff(ctx, rallyRepo, rallyPR)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch initial diff: %w", err)
	}
	rctx.Diff = diffText

	for filename, patch := range diff.ParseUnifiedDiff(diffText) {
		rctx.FilePatches = append(rctx.FilePatches, rally.FilePatch{Filename: filename, Patch: patch})
	}

	if rctx.HeadSHA == "" && git != nil {
		if sha, err := git.HeadSHA(ctx, workingDir); err == nil {
			rctx.HeadSHA = sha
		}
	}

	return rctx, nil
}

// runEventLoop drains events, printing a human-readable line for each,
// and prompts on stdin for every event that blocks the rally on a
// command response.
func runEventLoop(events <-chan event.Event, commands chan<- event.Command) {
	reader := bufio.NewReader(os.Stdin)

	for ev := range events {
		switch e := ev.(type) {
		case event.StateChangedEvent:
			fmt.Printf("[state] %s\n", e.State)
		case event.IterationStartedEvent:
			fmt.Printf("\n=== Iteration %d ===\n", e.Iteration)
		case event.ReviewCompletedEvent:
			fmt.Printf("[reviewer] %s: %s\n", e.Output.Action, e.Output.Summary)
		case event.FixCompletedEvent:
			fmt.Printf("[reviewee] %s: %s\n", e.Output.Status, e.Output.Summary)
		case event.ApprovedEvent:
			fmt.Printf("[approved] %s\n", e.Summary)
		case event.LogEvent:
			fmt.Printf("[log] %s\n", e.Message)
		case event.ErrorEvent:
			fmt.Printf("[error] %s\n", e.Message)
		case event.AgentTextEvent:
			// verbose agent trace, omitted from the default view
		case event.ClarificationNeededEvent:
			fmt.Printf("\n[reviewee asks] %s\n", e.Question)
			answer := promptLine(reader, "Your answer (blank to skip): ")
			if answer == "" {
				commands <- event.SkipClarificationCommand{}
			} else {
				commands <- event.ClarificationResponseCommand{Answer: answer}
			}
		case event.PermissionNeededEvent:
			fmt.Printf("\n[reviewee requests permission] %s (%s)\n", e.Action, e.Reason)
			commands <- event.PermissionResponseCommand{Approved: promptYesNo(reader, "Grant permission? [y/N]: ")}
		case event.ReviewPostConfirmNeededEvent:
			fmt.Printf("\n[post review?] %s (%d comment(s)): %s\n", e.Info.Action, e.Info.CommentCount, e.Info.Summary)
			commands <- event.PostConfirmResponseCommand{Approved: promptYesNo(reader, "Post to PR? [y/N]: ")}
		case event.FixPostConfirmNeededEvent:
			fmt.Printf("\n[post fix summary?] %s\n", e.Info.Summary)
			commands <- event.PostConfirmResponseCommand{Approved: promptYesNo(reader, "Post to PR? [y/N]: ")}
		}
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func promptLine(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptYesNo(reader *bufio.Reader, label string) bool {
	answer := strings.ToLower(promptLine(reader, label))
	return answer == "y" || answer == "yes"
}

func reportRallyResult(result rally.Result) error {
	switch result.Kind {
	case rally.ResultApproved:
		fmt.Printf("\nRally approved after %d iteration(s): %s\n", result.Iteration, result.Summary)
		return nil
	case rally.ResultMaxIterationsReached:
		fmt.Printf("\nRally hit its iteration cap (%d) without approval.\n", result.Iteration)
		return fmt.Errorf("max iterations reached without approval")
	case rally.ResultAborted:
		fmt.Printf("\nRally aborted at iteration %d: %s\n", result.Iteration, result.Reason)
		return fmt.Errorf("rally aborted: %s", result.Reason)
	default:
		return fmt.Errorf("rally failed at iteration %d: %w", result.Iteration, result.Err)
	}
}
