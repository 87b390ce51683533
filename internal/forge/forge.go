// Package forge implements the forge-client collaborator against
// GitHub: PR metadata/diff/comment retrieval and review/comment
// submission, used by the orchestrator for everything the rally needs
// beyond the agents themselves.
package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/octorus/octorus/internal/diff"
	"github.com/octorus/octorus/internal/rally"
	"github.com/octorus/octorus/internal/review"
)

// botSuffixes identifies automation accounts by login suffix.
var botSuffixes = []string{"[bot]"}

// botExactMatches is a fixed allowlist of known automation accounts
// whose logins don't carry a recognizable bot suffix.
var botExactMatches = map[string]bool{
	"github-actions": true,
	"dependabot":     true,
}

// IsBotUser reports whether login identifies an automation account:
// a "[bot]"-suffixed login or a known automation account name.
func IsBotUser(login string) bool {
	for _, suffix := range botSuffixes {
		if strings.HasSuffix(login, suffix) {
			return true
		}
	}
	return botExactMatches[login]
}

// MaxExternalComments bounds how many bot comments feed the Reviewee
// prompt.
const MaxExternalComments = 20

// PRMetadata is the subset of a pull request's forge data the rally
// needs to seed a Context.
type PRMetadata struct {
	HeadSHA    string
	Title      string
	Body       string
	BaseBranch string
}

// Forge is the forge-client collaborator interface. The orchestrator
// depends on this interface, never on *GitHubForge directly, so tests
// can substitute a scripted fake.
type Forge interface {
	FetchPR(ctx context.Context, repo string, prNumber int) (PRMetadata, error)
	FetchPRDiff(ctx context.Context, repo string, prNumber int) (string, error)
	FetchExternalComments(ctx context.Context, repo string, prNumber int) ([]rally.ExternalComment, error)
	SubmitReview(ctx context.Context, repo string, prNumber int, action review.Action, body string) error
	CreateReviewComment(ctx context.Context, repo string, prNumber int, commitID, path string, position int, body string) error
	CreateIssueComment(ctx context.Context, repo string, prNumber int, body string) error
}

// GitHubForge implements Forge via go-github.
type GitHubForge struct {
	gh *github.Client
}

// New constructs a GitHubForge authenticated with token. An empty
// token yields an unauthenticated client, which GitHub rate-limits
// aggressively — callers should always supply one outside of tests.
func New(token string) *GitHubForge {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubForge{gh: client}
}

// NewWithClient wraps an existing *github.Client, for tests pointing
// at an httptest server.
func NewWithClient(gh *github.Client) *GitHubForge {
	return &GitHubForge{gh: gh}
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo identifier %q: want owner/name", repo)
	}
	return parts[0], parts[1], nil
}

// FetchPR returns the PR's head SHA, title, body, and base branch.
func (f *GitHubForge) FetchPR(ctx context.Context, repo string, prNumber int) (PRMetadata, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return PRMetadata{}, err
	}
	pr, _, err := f.gh.PullRequests.Get(ctx, owner, name, prNumber)
	if err != nil {
		return PRMetadata{}, fmt.Errorf("fetch PR %s#%d: %w", repo, prNumber, err)
	}
	return PRMetadata{
		HeadSHA:    pr.GetHead().GetSHA(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		BaseBranch: pr.GetBase().GetRef(),
	}, nil
}

// FetchPRDiff returns the PR's full unified diff, used as the
// fallback when a local working-tree diff isn't available.
func (f *GitHubForge) FetchPRDiff(ctx context.Context, repo string, prNumber int) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	raw, _, err := f.gh.PullRequests.GetRaw(ctx, owner, name, prNumber, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("fetch PR diff %s#%d: %w", repo, prNumber, err)
	}
	return raw, nil
}

// FetchExternalComments gathers inline review comments and general
// discussion comments authored by a bot user.
func (f *GitHubForge) FetchExternalComments(ctx context.Context, repo string, prNumber int) ([]rally.ExternalComment, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var comments []rally.ExternalComment

	reviewOpts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		batch, resp, err := f.gh.PullRequests.ListComments(ctx, owner, name, prNumber, reviewOpts)
		if err != nil {
			return nil, fmt.Errorf("list review comments %s#%d: %w", repo, prNumber, err)
		}
		for _, c := range batch {
			login := c.GetUser().GetLogin()
			if !IsBotUser(login) {
				continue
			}
			comments = append(comments, rally.ExternalComment{
				AuthorLogin: login,
				Path:        c.GetPath(),
				Line:        c.GetLine(),
				Body:        c.GetBody(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	issueOpts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		batch, resp, err := f.gh.Issues.ListComments(ctx, owner, name, prNumber, issueOpts)
		if err != nil {
			return nil, fmt.Errorf("list discussion comments %s#%d: %w", repo, prNumber, err)
		}
		for _, c := range batch {
			login := c.GetUser().GetLogin()
			if !IsBotUser(login) {
				continue
			}
			comments = append(comments, rally.ExternalComment{
				AuthorLogin: login,
				Body:        c.GetBody(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		issueOpts.Page = resp.NextPage
	}

	if len(comments) > MaxExternalComments {
		comments = comments[:MaxExternalComments]
	}
	return comments, nil
}

func reviewEvent(action review.Action) string {
	switch action {
	case review.Approve:
		return "APPROVE"
	case review.RequestChanges:
		return "REQUEST_CHANGES"
	default:
		return "COMMENT"
	}
}

// SubmitReview posts a summary review with the given action and body.
// A rejected Approve (e.g. the forge refuses self-approval) is
// retried as a plain Comment rather than failing the rally.
func (f *GitHubForge) SubmitReview(ctx context.Context, repo string, prNumber int, action review.Action, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	event := reviewEvent(action)
	_, _, err = f.gh.PullRequests.CreateReview(ctx, owner, name, prNumber, &github.PullRequestReviewRequest{
		Body:  github.Ptr(body),
		Event: github.Ptr(event),
	})
	if err != nil && action == review.Approve {
		_, _, retryErr := f.gh.PullRequests.CreateReview(ctx, owner, name, prNumber, &github.PullRequestReviewRequest{
			Body:  github.Ptr(body),
			Event: github.Ptr("COMMENT"),
		})
		if retryErr != nil {
			return fmt.Errorf("submit review %s#%d (approve rejected, comment retry failed): %w", repo, prNumber, retryErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("submit review %s#%d: %w", repo, prNumber, err)
	}
	return nil
}

// CreateReviewComment posts one inline review comment at the given
// forge patch position.
func (f *GitHubForge) CreateReviewComment(ctx context.Context, repo string, prNumber int, commitID, path string, position int, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = f.gh.PullRequests.CreateComment(ctx, owner, name, prNumber, &github.PullRequestComment{
		Body:     github.Ptr(body),
		CommitID: github.Ptr(commitID),
		Path:     github.Ptr(path),
		Position: github.Ptr(position),
	})
	if err != nil {
		return fmt.Errorf("create review comment %s#%d %s (position %d): %w", repo, prNumber, path, position, err)
	}
	return nil
}

// CreateIssueComment posts a plain (non-review) PR comment, used for
// the fix-summary post.
func (f *GitHubForge) CreateIssueComment(ctx context.Context, repo string, prNumber int, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	_, _, err = f.gh.Issues.CreateComment(ctx, owner, name, prNumber, &github.IssueComment{Body: github.Ptr(body)})
	if err != nil {
		return fmt.Errorf("create issue comment %s#%d: %w", repo, prNumber, err)
	}
	return nil
}

// PatchPosition is a thin re-export of diff.LineNumberToPosition so
// callers that only import forge don't also need to import diff
// directly when translating a reviewer comment's line to a forge
// position.
func PatchPosition(patch string, line int) (int, bool) {
	return diff.LineNumberToPosition(patch, line)
}
