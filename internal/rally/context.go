package rally

// FilePatch pairs a changed file's path with its per-file unified
// diff patch text, used to map an inline comment's line number to its
// diff position when a review is posted.
type FilePatch struct {
	Filename string
	Patch    string
}

// ExternalComment is a single bot-authored comment gathered from the
// forge, fed to the Reviewee as extra context.
type ExternalComment struct {
	AuthorLogin string
	Path        string
	Line        int
	Body        string
}

// Context is the rally state fed to both agent roles. One Context
// lasts the whole rally and is updated in place: the diff before each
// re-review, the head commit before posting, and the external comments
// before each Reviewee turn. FilePatches is set once when it is built.
type Context struct {
	Repo     string // "owner/name"
	PRNumber int    // zero when local-only

	PRTitle string
	PRBody  string

	Diff string

	WorkingDir string // empty unless a local working tree is available
	LocalMode  bool

	HeadSHA    string
	BaseBranch string

	ExternalComments []ExternalComment
	FilePatches      []FilePatch
}

// PatchFor returns the per-file patch text for filename, if present.
func (c *Context) PatchFor(filename string) (string, bool) {
	for _, fp := range c.FilePatches {
		if fp.Filename == filename {
			return fp.Patch, true
		}
	}
	return "", false
}
