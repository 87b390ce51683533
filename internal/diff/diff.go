// Package diff parses unified-diff patch content and maps new-file
// line numbers to GitHub review "position" values.
package diff

import (
	"strconv"
	"strings"
)

// LineType classifies a single line of a unified diff.
type LineType string

const (
	Added   LineType = "added"
	Removed LineType = "removed"
	Context LineType = "context"
	Header  LineType = "header"
	Meta    LineType = "meta"
)

// LineInfo is the per-line result of GetLineInfo.
type LineInfo struct {
	Content       string
	Type          LineType
	NewLineNumber int // 0 when not applicable
	HasNewLine    bool
	Position      int // 0 when not applicable
	HasPosition   bool
}

// ClassifyLine returns the line's type and its content with the
// leading diff-prefix character stripped (for Added/Removed/Context).
func ClassifyLine(line string) (LineType, string) {
	switch {
	case strings.HasPrefix(line, "@@"):
		return Header, line
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"),
		strings.HasPrefix(line, "diff "), strings.HasPrefix(line, "index "):
		return Meta, line
	case strings.HasPrefix(line, "+"):
		return Added, line[1:]
	case strings.HasPrefix(line, "-"):
		return Removed, line[1:]
	case strings.HasPrefix(line, " "):
		return Context, line[1:]
	default:
		return Context, line
	}
}

// parseHunkHeader extracts the new-file starting line number from a
// "@@ -old_start,old_count +new_start,new_count @@" header.
func parseHunkHeader(line string) (int, bool) {
	plusPos := strings.IndexByte(line, '+')
	if plusPos == -1 {
		return 0, false
	}
	after := line[plusPos+1:]
	end := strings.IndexAny(after, ", ")
	if end == -1 {
		end = len(after)
	}
	n, err := strconv.Atoi(after[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitLines(patch string) []string {
	if patch == "" {
		return nil
	}
	return strings.Split(patch, "\n")
}

// GetLineInfo returns information about the line at lineIndex
// (zero-based) within patch, or false if the index is out of range.
func GetLineInfo(patch string, lineIndex int) (LineInfo, bool) {
	lines := splitLines(patch)
	if lineIndex < 0 || lineIndex >= len(lines) {
		return LineInfo{}, false
	}

	var newLineNumber int
	var hasNewLine bool
	var positionCounter int
	var hasPosition bool

	for i, line := range lines {
		lineType, content := ClassifyLine(line)

		switch lineType {
		case Meta:
			// doesn't count toward position
		case Header:
			newLineNumber, hasNewLine = parseHunkHeader(line)
			if hasPosition {
				positionCounter++
			} else {
				positionCounter = 0
				hasPosition = true
			}
		case Added, Context, Removed:
			if hasPosition {
				positionCounter++
			}
		}

		if i == lineIndex {
			info := LineInfo{Content: content, Type: lineType}

			switch lineType {
			case Removed, Header, Meta:
				// no new-line number
			default:
				info.NewLineNumber = newLineNumber
				info.HasNewLine = hasNewLine
			}

			switch {
			case lineType == Meta:
				// no position
			case lineType == Header && hasPosition && positionCounter == 0:
				// first @@ header: not counted
			default:
				info.Position = positionCounter
				info.HasPosition = hasPosition
			}

			return info, true
		}

		if (lineType == Added || lineType == Context) && hasNewLine {
			newLineNumber++
		}
	}

	return LineInfo{}, false
}

// CanSuggestAtLine reports whether the line at lineIndex is an
// Added or Context line (the only lines a suggestion can anchor to).
func CanSuggestAtLine(patch string, lineIndex int) bool {
	info, ok := GetLineInfo(patch, lineIndex)
	if !ok {
		return false
	}
	return info.Type == Added || info.Type == Context
}

// ValidateMultilineRange reports whether every line in [start, end]
// (inclusive, zero-based) is an Added or Context line with no Header
// line crossing the range — i.e. the range stays within one hunk.
func ValidateMultilineRange(patch string, start, end int) bool {
	lines := splitLines(patch)
	for idx := start; idx <= end; idx++ {
		if idx < 0 || idx >= len(lines) {
			return false
		}
		lineType, _ := ClassifyLine(lines[idx])
		if lineType != Added && lineType != Context {
			return false
		}
	}
	return true
}

// LineNumberToPosition converts a new-file line number to the
// GitHub review "position" value by scanning patch for the matching
// Added or Context line. Returns false if no such line is found.
//
// Position counting: meta lines are skipped, the first "@@" header is
// not counted (position 1 is the line below it), and every subsequent
// "@@" header is counted.
func LineNumberToPosition(patch string, targetLine int) (int, bool) {
	var newLineNumber int
	var hasNewLine bool
	var positionCounter int
	var hasPosition bool

	for _, line := range splitLines(patch) {
		lineType, _ := ClassifyLine(line)

		switch lineType {
		case Meta:
			continue
		case Header:
			newLineNumber, hasNewLine = parseHunkHeader(line)
			if hasPosition {
				positionCounter++
			} else {
				positionCounter = 0
				hasPosition = true
			}
		case Added, Context:
			if hasPosition {
				positionCounter++
			}
			if hasNewLine && newLineNumber == targetLine {
				return positionCounter, hasPosition
			}
			if hasNewLine {
				newLineNumber++
			}
		case Removed:
			if hasPosition {
				positionCounter++
			}
		}
	}

	return 0, false
}

// FilePatch is one file's slice of a larger unified diff, as produced
// by ParseUnifiedDiff.
type FilePatch struct {
	Filename string
	Patch    string
}

// ParseUnifiedDiff splits the output of `git diff` or a forge's PR
// diff endpoint into per-file patches, keyed by the new filename
// (without the "a/"/"b/" prefix; renamed files key on the new name).
func ParseUnifiedDiff(unifiedDiff string) map[string]string {
	result := make(map[string]string)
	lines := splitLines(unifiedDiff)
	if len(lines) == 0 {
		return result
	}

	var currentFilename string
	haveFilename := false
	currentStart := -1
	var pendingMinusFilename string
	havePendingMinus := false

	flush := func(end int) {
		if haveFilename && currentStart >= 0 {
			patch := strings.Join(lines[currentStart:end], "\n")
			if patch != "" {
				result[currentFilename] = patch
			}
		}
	}

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush(i)
			name, ok := extractFilename(line)
			currentFilename, haveFilename = name, ok
			currentStart = i
			pendingMinusFilename, havePendingMinus = "", false
		case !haveFilename && currentStart >= 0:
			if rest, ok := strings.CutPrefix(line, "+++ "); ok {
				if rest != "/dev/null" {
					currentFilename = stripDiffPrefix(rest)
					haveFilename = true
				} else if havePendingMinus {
					currentFilename = pendingMinusFilename
					haveFilename = true
					havePendingMinus = false
				}
			} else if rest, ok := strings.CutPrefix(line, "--- "); ok {
				if rest != "/dev/null" {
					pendingMinusFilename = stripDiffPrefix(rest)
					havePendingMinus = true
				}
			}
		}
	}

	flush(len(lines))
	return result
}

// stripDiffPrefix removes the single-char prefix ("a/", "b/", "w/",
// etc.) from a --- or +++ path.
func stripDiffPrefix(path string) string {
	if len(path) >= 2 && path[1] == '/' {
		return path[2:]
	}
	return path
}

// extractFilename parses the new (post-change) filename out of a
// "diff --git a/path b/path" line, handling renames and
// diff.mnemonicPrefix configurations (a/b, c/w, i/w, o/w). Returns
// false for ambiguous lines; callers should fall back to the +++/---
// lines.
func extractFilename(gitDiffLine string) (string, bool) {
	content, ok := strings.CutPrefix(gitDiffLine, "diff --git ")
	if !ok {
		return "", false
	}
	if len(content) < 2 || content[1] != '/' {
		return "", false
	}

	firstPrefix := content[0]
	firstPath := content[2:]

	// Strategy 1: non-rename (path1 == path2), "path1 Y/path2".
	totalLen := len(firstPath)
	if totalLen >= 3 && (totalLen-3)%2 == 0 {
		pathLen := (totalLen - 3) / 2
		if pathLen > 0 {
			sep := pathLen
			if firstPath[sep] == ' ' && firstPath[sep+2] == '/' {
				path1 := firstPath[:pathLen]
				path2 := firstPath[sep+3:]
				if path1 == path2 {
					return path2, true
				}
			}
		}
	}

	// Strategy 2: rename, using the known prefix pairing to reduce
	// false positives.
	var secondPrefix byte
	switch firstPrefix {
	case 'a':
		secondPrefix = 'b'
	case 'c', 'i', 'o':
		secondPrefix = 'w'
	default:
		return "", false
	}

	var matches []int
	for i := 0; i+2 < len(firstPath); i++ {
		if firstPath[i] == ' ' && firstPath[i+1] == secondPrefix && firstPath[i+2] == '/' {
			matches = append(matches, i)
		}
	}

	if len(matches) == 1 {
		path2 := firstPath[matches[0]+3:]
		if path2 != "" {
			return path2, true
		}
	}

	return "", false
}
