// Package orchestrator implements the rally main loop: it
// drives the Reviewer/Reviewee turn cycle, persists session state and
// history, gates forge posts on user confirmation when configured,
// and resolves the Reviewee's clarification/permission requests
// against the command channel.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/octorus/octorus/internal/ai"
	"github.com/octorus/octorus/internal/approval"
	"github.com/octorus/octorus/internal/config"
	rallyerrors "github.com/octorus/octorus/internal/errors"
	"github.com/octorus/octorus/internal/event"
	"github.com/octorus/octorus/internal/forge"
	"github.com/octorus/octorus/internal/logging"
	"github.com/octorus/octorus/internal/prompt"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
	"github.com/octorus/octorus/internal/reviewee"
	"github.com/octorus/octorus/internal/safety"
	"github.com/octorus/octorus/internal/session"
	"github.com/octorus/octorus/internal/vcs"
)

// interCommentDelay throttles inline-comment posting so a
// many-comment review doesn't trip the forge's abuse rate limiter.
const interCommentDelay = 100 * time.Millisecond

// Options builds an Orchestrator. Reviewer and Reviewee are distinct
// Agent instances (each constructed against the backend its role's
// config key names), since the two roles commonly run different
// backends.
type Options struct {
	Repo     string
	PRNumber int

	Config   *config.AIConfig
	Reviewer ai.Agent
	Reviewee ai.Agent

	Store   *session.FileStore
	Prompts *prompt.Loader

	// Logger receives the rally's structured debug trail. Nil means
	// discard.
	Logger *logging.Logger

	// Forge is nil for a purely local rally (no PR to talk to).
	Forge forge.Forge
	// Git is nil when no working tree is available at all.
	Git *vcs.Git

	Events   chan<- event.Event
	Commands <-chan event.Command
}

// Orchestrator runs one rally to completion.
type Orchestrator struct {
	repo     string
	prNumber int

	cfg      *config.AIConfig
	reviewer ai.Agent
	reviewee ai.Agent

	store   *session.FileStore
	prompts *prompt.Loader
	logger  *logging.Logger

	forge forge.Forge
	git   *vcs.Git

	events   event.Sender
	commands <-chan event.Command

	sess    *session.RallySession
	lastFix *reviewee.Output
}

// New constructs an Orchestrator, wiring each agent's event sender
// and seeding the Reviewee's allowed-tool set from config.
func New(opts Options) *Orchestrator {
	sender := event.NewSender(opts.Events)
	opts.Reviewer.SetEventSender(sender)
	opts.Reviewee.SetEventSender(sender)
	for _, tool := range opts.Config.RevieweeAdditionalTools {
		opts.Reviewee.AddRevieweeAllowedTool(tool)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Orchestrator{
		repo:     opts.Repo,
		prNumber: opts.PRNumber,
		cfg:      opts.Config,
		reviewer: opts.Reviewer,
		reviewee: opts.Reviewee,
		store:    opts.Store,
		prompts:  opts.Prompts,
		logger:   logger,
		forge:    opts.Forge,
		git:      opts.Git,
		events:   sender,
		commands: opts.Commands,
	}
}

// Run drives the rally against rctx to completion, returning exactly
// one of the four rally.Result variants. rctx is mutated in place as
// the diff, head commit, and external comments refresh across
// iterations — callers should not read it concurrently while Run is
// in flight.
func (o *Orchestrator) Run(ctx context.Context, rctx *rally.Context) rally.Result {
	o.sess = session.New(o.repo, o.prNumber)
	o.emit(event.NewStateChangedEvent(rally.Initializing))

	for o.sess.Iteration < o.cfg.MaxIterations {
		o.sess.IncrementIteration()
		iteration := o.sess.Iteration
		o.emit(event.NewIterationStartedEvent(iteration))

		// The Reviewee never pushes; this only matters when the user
		// manually pushed or CI updated the PR branch between turns.
		if iteration > 1 {
			if err := o.refreshHeadSHA(ctx, rctx); err != nil {
				o.log("failed to refresh head commit: %v", err)
			}
		}

		o.transition(rally.ReviewerReviewing)

		reviewOut, err := o.runReviewer(ctx, rctx, iteration)
		if err != nil {
			return o.failWith(iteration, err)
		}
		o.appendHistory(session.NewReviewHistoryEntry(iteration, reviewOut))
		o.emit(event.NewReviewCompletedEvent(reviewOut))

		if err := o.refreshHeadSHA(ctx, rctx); err != nil {
			o.log("failed to refresh head commit before posting review: %v", err)
		}

		aborted, err := o.maybePostReview(ctx, rctx, reviewOut)
		if aborted {
			return o.abortWith(iteration, "review posting aborted by user")
		}
		if err != nil {
			o.log("failed to post review to PR: %v", err)
		}

		if reviewOut.Action == review.Approve {
			o.emit(event.NewApprovedEvent(reviewOut.Summary))
			o.transition(rally.Completed)
			return rally.Approved(iteration, reviewOut.Summary)
		}

		o.transition(rally.RevieweeFix)

		external := o.fetchExternalComments(ctx, rctx)
		if len(external) > 0 {
			o.log("fetched %d external bot comments", len(external))
		}
		rctx.ExternalComments = external

		fixOut, err := o.runReviewee(ctx, rctx, reviewOut, iteration)
		if err != nil {
			return o.failWith(iteration, err)
		}
		o.appendHistory(session.NewFixHistoryEntry(iteration, fixOut))
		o.emit(event.NewFixCompletedEvent(fixOut))

		switch fixOut.Status {
		case reviewee.Completed:
			o.lastFix = &fixOut
			aborted, err := o.maybePostFix(ctx, rctx, fixOut)
			if aborted {
				return o.abortWith(iteration, "fix comment posting aborted by user")
			}
			if err != nil {
				o.log("failed to post fix comment to PR: %v", err)
			}
			// fall through to next iteration

		case reviewee.NeedsClarification:
			if result, done := o.handleClarification(ctx, rctx, fixOut, iteration); done {
				return result
			}

		case reviewee.NeedsPermission:
			if result, done := o.handlePermission(ctx, rctx, fixOut, iteration); done {
				return result
			}

		case reviewee.Error:
			detail := fixOut.ErrorDetail
			if detail == "" {
				detail = "unknown error"
			}
			return o.failWith(iteration, rallyerrors.Newf(rallyerrors.AgentFailure, iteration, "reviewee error: %s", detail))
		}
	}

	o.transition(rally.Completed)
	o.log("max iterations (%d) reached", o.cfg.MaxIterations)
	return rally.MaxIterationsReached(o.sess.Iteration)
}

// handleClarification resolves a NeedsClarification Reviewee turn,
// blocking on the command channel. done reports whether the rally
// reached a terminal result (result is then meaningful); otherwise
// the caller proceeds to the next loop iteration.
func (o *Orchestrator) handleClarification(ctx context.Context, rctx *rally.Context, fixOut reviewee.Output, iteration int) (rally.Result, bool) {
	if fixOut.Question == "" {
		return rally.Result{}, false
	}

	o.transition(rally.WaitingForClarification)
	o.emit(event.NewClarificationNeededEvent(fixOut.Question))

	for {
		cmd, err := approval.WaitForCommand(ctx, o.commands, o.events, rally.WaitingForClarification)
		if err != nil {
			return o.abortWith(iteration, "clarification cancelled by user"), true
		}

		switch c := cmd.(type) {
		case event.ClarificationResponseCommand:
			o.log("user provided clarification: %s", c.Answer)

			reviewerResp, err := o.reviewer.ContinueReviewer(ctx, clarificationPrompt(c.Answer))
			if err != nil {
				return o.failWith(iteration, rallyerrors.Wrap(rallyerrors.AgentFailure, iteration, "reviewer clarification follow-up failed", err)), true
			}
			o.log("reviewer clarification response: %s", reviewerResp.Summary)

			if _, err := o.reviewee.ContinueReviewee(ctx, c.Answer); err != nil {
				return o.failWith(iteration, rallyerrors.Wrap(rallyerrors.AgentFailure, iteration, "reviewee clarification follow-up failed", err)), true
			}

			o.transition(rally.RevieweeFix)
			return rally.Result{}, false

		case event.SkipClarificationCommand:
			o.log("clarification skipped for: %s. continuing with best judgment...", fixOut.Question)
			o.continueRevieweeBestEffort(ctx, rctx, iteration, skippedClarificationPrompt(fixOut.Question))
			o.transition(rally.RevieweeFix)
			return rally.Result{}, false

		case event.AbortCommand:
			return o.abortWith(iteration, "clarification cancelled by user"), true
		}
	}
}

// handlePermission resolves a NeedsPermission Reviewee turn.
func (o *Orchestrator) handlePermission(ctx context.Context, rctx *rally.Context, fixOut reviewee.Output, iteration int) (rally.Result, bool) {
	perm := fixOut.Permission
	if perm == nil {
		return rally.Result{}, false
	}

	o.transition(rally.WaitingForPermission)
	o.emit(event.NewPermissionNeededEvent(perm.Action, perm.Reason))

	for {
		cmd, err := approval.WaitForCommand(ctx, o.commands, o.events, rally.WaitingForPermission)
		if err != nil {
			return o.abortWith(iteration, fmt.Sprintf("permission aborted: %s", perm.Action)), true
		}

		switch c := cmd.(type) {
		case event.PermissionResponseCommand:
			if !c.Approved {
				o.log("permission denied for: %s. continuing without it...", perm.Action)
				o.continueRevieweeBestEffort(ctx, rctx, iteration, permissionDeniedPrompt(perm.Action, perm.Reason))
				o.transition(rally.RevieweeFix)
				return rally.Result{}, false
			}

			if rctx.LocalMode {
				if reason, blocked := safety.CheckBlockedGitOperation(perm.Action); blocked {
					msg := fmt.Sprintf("permission blocked in local mode: %s. action: %s", reason, perm.Action)
					o.log("%s", msg)
					return o.failWith(iteration, rallyerrors.Newf(rallyerrors.PermissionBlocked, iteration, "%s", msg)), true
				}
			}

			o.log("user granted permission for: %s", perm.Action)
			o.reviewee.AddRevieweeAllowedTool(perm.Action)

			out, err := o.reviewee.ContinueReviewee(ctx, permissionGrantedPrompt(perm.Action))
			if err != nil {
				return o.failWith(iteration, rallyerrors.Wrap(rallyerrors.AgentFailure, iteration, "reviewee permission follow-up failed", err)), true
			}
			o.appendHistory(session.NewFixHistoryEntry(iteration, out))
			o.emit(event.NewFixCompletedEvent(out))
			o.lastFix = &out

			o.transition(rally.RevieweeFix)
			return rally.Result{}, false

		case event.AbortCommand:
			return o.abortWith(iteration, fmt.Sprintf("permission aborted: %s", perm.Action)), true
		}
	}
}

// continueRevieweeBestEffort re-enters the Reviewee with prompt after
// a skipped clarification or denied permission. A follow-up failure
// is logged, not fatal: the rally proceeds to its next re-review with
// whatever the Reviewee already produced this iteration.
func (o *Orchestrator) continueRevieweeBestEffort(ctx context.Context, rctx *rally.Context, iteration int, prompt string) {
	out, err := o.reviewee.ContinueReviewee(ctx, prompt)
	if err != nil {
		o.lastFix = nil
		o.log("error continuing reviewee: %v. proceeding to re-review.", err)
		return
	}

	o.appendHistory(session.NewFixHistoryEntry(iteration, out))
	aborted, postErr := o.maybePostFix(ctx, rctx, out)
	if postErr != nil {
		o.log("failed to post follow-up fix comment to PR: %v", postErr)
	}
	o.emit(event.NewFixCompletedEvent(out))
	o.lastFix = &out
	_ = aborted // a follow-up post-confirm abort does not cancel the rally itself
}

func (o *Orchestrator) runReviewer(ctx context.Context, rctx *rally.Context, iteration int) (review.Output, error) {
	var p string
	if iteration == 1 {
		p = o.prompts.LoadReviewerPrompt(rctx, iteration)
	} else {
		updatedDiff, err := o.fetchCurrentDiff(ctx, rctx)
		if err != nil {
			o.log("failed to fetch updated diff: %v", err)
			updatedDiff = rctx.Diff
		} else {
			rctx.Diff = updatedDiff
		}

		changesSummary := "No changes recorded"
		if o.lastFix != nil {
			files := "No files modified"
			if len(o.lastFix.ModifiedFiles) > 0 {
				files = strings.Join(o.lastFix.ModifiedFiles, ", ")
			}
			changesSummary = fmt.Sprintf("%s\n\nFiles modified: %s", o.lastFix.Summary, files)
		}
		p = o.prompts.LoadRereviewPrompt(rctx, iteration, changesSummary, updatedDiff)
	}

	o.logger.WithIteration(iteration).WithRole("reviewer").Info("running reviewer", "timeout_secs", o.cfg.TimeoutSecs)

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	out, err := o.reviewer.RunReviewer(cctx, p, rctx)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return review.Output{}, rallyerrors.Newf(rallyerrors.Timeout, iteration, "reviewer timeout after %d seconds", o.cfg.TimeoutSecs)
		}
		return review.Output{}, rallyerrors.Wrap(rallyerrors.AgentFailure, iteration, "reviewer failed", err)
	}
	return out, nil
}

func (o *Orchestrator) runReviewee(ctx context.Context, rctx *rally.Context, reviewOut review.Output, iteration int) (reviewee.Output, error) {
	p := o.prompts.LoadRevieweePrompt(rctx, reviewOut, iteration)

	o.logger.WithIteration(iteration).WithRole("reviewee").Info("running reviewee", "timeout_secs", o.cfg.TimeoutSecs)

	cctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	out, err := o.reviewee.RunReviewee(cctx, p, rctx)
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return reviewee.Output{}, rallyerrors.Newf(rallyerrors.Timeout, iteration, "reviewee timeout after %d seconds", o.cfg.TimeoutSecs)
		}
		return reviewee.Output{}, rallyerrors.Wrap(rallyerrors.AgentFailure, iteration, "reviewee failed", err)
	}
	return out, nil
}

// maybePostReview gates postReview on user confirmation unless the
// rally is local-only or auto_post is enabled. aborted reports
// whether the user aborted the rally while the confirmation was
// pending.
func (o *Orchestrator) maybePostReview(ctx context.Context, rctx *rally.Context, out review.Output) (aborted bool, err error) {
	if rctx.LocalMode || o.cfg.AutoPost {
		return false, o.postReview(ctx, rctx, out)
	}

	info := event.ReviewPostInfo{Action: string(out.Action), Summary: out.Summary, CommentCount: out.CommentCount()}
	o.transition(rally.WaitingForPostConfirmation)
	o.emit(event.NewReviewPostConfirmNeededEvent(info))

	cmd, waitErr := approval.WaitForCommand(ctx, o.commands, o.events, rally.WaitingForPostConfirmation)
	if waitErr != nil {
		o.transition(rally.Aborted)
		return true, nil
	}

	switch c := cmd.(type) {
	case event.PostConfirmResponseCommand:
		if c.Approved {
			o.log("user approved review posting")
			return false, o.postReview(ctx, rctx, out)
		}
		o.log("user skipped review posting")
		return false, nil
	case event.AbortCommand:
		o.transition(rally.Aborted)
		return true, nil
	}
	return false, nil
}

// maybePostFix gates postFix the same way maybePostReview gates
// postReview.
func (o *Orchestrator) maybePostFix(ctx context.Context, rctx *rally.Context, fix reviewee.Output) (aborted bool, err error) {
	if rctx.LocalMode || o.cfg.AutoPost {
		return false, o.postFix(ctx, rctx, fix)
	}

	info := event.FixPostInfo{Summary: fix.Summary, ModifiedFiles: fix.ModifiedFiles}
	o.transition(rally.WaitingForPostConfirmation)
	o.emit(event.NewFixPostConfirmNeededEvent(info))

	cmd, waitErr := approval.WaitForCommand(ctx, o.commands, o.events, rally.WaitingForPostConfirmation)
	if waitErr != nil {
		o.transition(rally.Aborted)
		return true, nil
	}

	switch c := cmd.(type) {
	case event.PostConfirmResponseCommand:
		if c.Approved {
			o.log("user approved fix comment posting")
			return false, o.postFix(ctx, rctx, fix)
		}
		o.log("user skipped fix comment posting")
		return false, nil
	case event.AbortCommand:
		o.transition(rally.Aborted)
		return true, nil
	}
	return false, nil
}

// postReview submits the Reviewer's summary verdict and its inline
// comments to the forge. A no-op in local mode.
func (o *Orchestrator) postReview(ctx context.Context, rctx *rally.Context, out review.Output) error {
	if rctx.LocalMode {
		o.log("local mode: skipping review posting to PR")
		return nil
	}
	if o.forge == nil {
		return fmt.Errorf("no forge configured for a non-local rally")
	}

	summary := "[AI Rally - Reviewer]\n\n" + out.Summary
	if err := o.forge.SubmitReview(ctx, o.repo, o.prNumber, out.Action, summary); err != nil {
		return fmt.Errorf("submit review: %w", err)
	}

	for _, c := range out.InlineComments {
		patch, ok := rctx.PatchFor(c.Path)
		if !ok {
			o.log("no patch found for %s, skipping comment", c.Path)
			continue
		}
		position, ok := forge.PatchPosition(patch, c.Line)
		if !ok {
			o.log("could not convert line %d to position for %s, skipping comment", c.Line, c.Path)
			continue
		}

		body := "[AI Rally - Reviewer]\n\n" + c.Body
		if err := o.forge.CreateReviewComment(ctx, o.repo, o.prNumber, rctx.HeadSHA, c.Path, position, body); err != nil {
			o.log("failed to post inline comment on %s:%d (position %d): %v", c.Path, c.Line, position, err)
		}
		time.Sleep(interCommentDelay)
	}
	return nil
}

// postFix posts the Reviewee's fix summary as a plain PR comment. A
// no-op in local mode.
func (o *Orchestrator) postFix(ctx context.Context, rctx *rally.Context, fix reviewee.Output) error {
	if rctx.LocalMode {
		o.log("local mode: skipping fix comment posting")
		return nil
	}
	if o.forge == nil {
		return fmt.Errorf("no forge configured for a non-local rally")
	}

	filesList := "No files modified"
	if len(fix.ModifiedFiles) > 0 {
		lines := make([]string, len(fix.ModifiedFiles))
		for i, f := range fix.ModifiedFiles {
			lines[i] = "- `" + f + "`"
		}
		filesList = strings.Join(lines, "\n")
	}

	body := fmt.Sprintf("[AI Rally - Reviewee]\n\n%s\n\n**Files modified:**\n%s", fix.Summary, filesList)
	if err := o.forge.CreateIssueComment(ctx, o.repo, o.prNumber, body); err != nil {
		return fmt.Errorf("post fix comment: %w", err)
	}
	return nil
}

// fetchExternalComments gathers bot comments ahead of a Reviewee
// turn. Errors are logged and degrade to no comments rather than
// failing the iteration.
func (o *Orchestrator) fetchExternalComments(ctx context.Context, rctx *rally.Context) []rally.ExternalComment {
	if rctx.LocalMode || o.forge == nil {
		return nil
	}
	comments, err := o.forge.FetchExternalComments(ctx, o.repo, o.prNumber)
	if err != nil {
		o.log("failed to fetch external comments: %v", err)
		return nil
	}
	return comments
}

// refreshHeadSHA re-reads the PR's head commit. A no-op in local
// mode, since there is no forge PR to re-read.
func (o *Orchestrator) refreshHeadSHA(ctx context.Context, rctx *rally.Context) error {
	if rctx.LocalMode || o.forge == nil {
		return nil
	}
	meta, err := o.forge.FetchPR(ctx, o.repo, o.prNumber)
	if err != nil {
		return err
	}
	rctx.HeadSHA = meta.HeadSHA
	return nil
}

// fetchCurrentDiff implements the re-review diff refresh:
// prefer a local working tree's current diff, falling back to the
// forge's PR diff when no working tree is available or, outside local
// mode, the local diff comes back empty.
func (o *Orchestrator) fetchCurrentDiff(ctx context.Context, rctx *rally.Context) (string, error) {
	forgeFallback := func(c context.Context) (string, error) {
		if o.forge == nil {
			return "", fmt.Errorf("no forge configured to fetch a PR diff")
		}
		return o.forge.FetchPRDiff(c, o.repo, o.prNumber)
	}

	if o.git == nil {
		return forgeFallback(ctx)
	}
	return o.git.CurrentDiff(ctx, rctx.WorkingDir, rctx.BaseBranch, rctx.LocalMode, forgeFallback)
}

func (o *Orchestrator) transition(state rally.State) {
	o.logger.Debug("state transition", "from", string(o.sess.State), "to", string(state), "iteration", o.sess.Iteration)
	o.sess.UpdateState(state)
	if err := o.store.WriteSession(o.sess); err != nil {
		o.log("failed to write session: %v", err)
	}
	o.emit(event.NewStateChangedEvent(state))
}

func (o *Orchestrator) appendHistory(entry session.HistoryEntry) {
	if err := o.store.WriteHistoryEntry(entry); err != nil {
		o.log("failed to write history entry: %v", err)
	}
}

func (o *Orchestrator) abortWith(iteration int, reason string) rally.Result {
	o.transition(rally.Aborted)
	o.emit(event.NewLogEvent(reason))
	o.logger.WithIteration(iteration).Warn("rally aborted", "reason", reason)
	return rally.AbortedResult(iteration, reason)
}

func (o *Orchestrator) failWith(iteration int, err error) rally.Result {
	o.transition(rally.Error)
	o.emit(event.NewErrorEvent(err.Error()))
	o.logger.WithIteration(iteration).Error("rally failed", "error", err.Error())
	return rally.ErrorResult(iteration, err)
}

func (o *Orchestrator) emit(e event.Event) {
	o.events.Send(e)
}

// log emits a LogEvent for UI consumers and mirrors the message to
// the rally's append-only log file; neither failing affects the
// rally.
func (o *Orchestrator) log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.emit(event.NewLogEvent(msg))
	if o.store != nil {
		if err := o.store.AppendLog("rally", msg); err != nil {
			o.logger.Warn("failed to append rally log", "error", err.Error())
		}
	}
}

// Follow-up prompts re-enter an agent's existing conversation, so
// they carry only the new information, not the full context.

func clarificationPrompt(answer string) string {
	return fmt.Sprintf("The user clarified: %s\n\nRe-evaluate the pull request with this clarification in mind.", answer)
}

func skippedClarificationPrompt(question string) string {
	return fmt.Sprintf("The user skipped answering your question: %q\n\nProceed using your best judgment.", question)
}

func permissionGrantedPrompt(action string) string {
	return fmt.Sprintf("Permission granted for: %s\n\nYou may now perform this action.", action)
}

func permissionDeniedPrompt(action, reason string) string {
	return fmt.Sprintf("Permission denied for: %s (stated reason: %s)\n\nContinue without performing this action.", action, reason)
}
