// Package tracemodel implements the range- and hash-matching primitives the
// attribution engine scores candidate traces with: finding which file entry
// in a trace corresponds to a blamed path, collecting every line range a
// trace records for that file (at the file, conversation, and change
// level), and extracting the content hash that covers a given line.
package tracemodel

import (
	"strings"

	"github.com/agenttrace/agenttrace/internal/model"
)

// overlapMargin is how many lines outside a recorded range still count as
// "near" it for the range_overlap signal.
const overlapMargin = 5

// FindMatchingFile returns the file entry in files whose path matches path,
// tolerating relative-vs-absolute differences: an exact match wins, then a
// suffix match in either direction (trace "vite.config.js" vs blamed
// "frontend/vite.config.js").
func FindMatchingFile(files []model.FileEntry, path string) *model.FileEntry {
	for i := range files {
		f := &files[i]
		if f.Path == path {
			return f
		}
		if strings.HasSuffix(f.Path, path) || strings.HasSuffix(path, f.Path) {
			return f
		}
	}
	return nil
}

// lineRange is an internal (start, end) pair used while scanning a file
// entry for ranges; not exported since callers only need the check/best
// helpers below.
type lineRange struct {
	start, end int
}

// collectRanges gathers every (start_line, end_line) range recorded on a
// file entry: its own top-level range, its conversations' top-level ranges
// and nested ranges[], and its changes' ranges.
func collectRanges(fe *model.FileEntry) []lineRange {
	var ranges []lineRange

	if fe.StartLine != nil && fe.EndLine != nil {
		ranges = append(ranges, lineRange{*fe.StartLine, *fe.EndLine})
	}

	for _, conv := range fe.Conversations {
		if conv.StartLine != nil && conv.EndLine != nil {
			ranges = append(ranges, lineRange{*conv.StartLine, *conv.EndLine})
		}
		for _, r := range conv.Ranges {
			ranges = append(ranges, lineRange{r.StartLine, r.EndLine})
		}
	}

	for _, change := range fe.Changes {
		if change.StartLine != nil && change.EndLine != nil {
			ranges = append(ranges, lineRange{*change.StartLine, *change.EndLine})
		}
	}

	return ranges
}

// CheckRange reports whether line falls within a recorded range ("exact"),
// within overlapMargin lines of one ("overlap"), or neither ("").
func CheckRange(fe *model.FileEntry, line int) string {
	ranges := collectRanges(fe)
	for _, r := range ranges {
		if r.start <= line && line <= r.end {
			return "exact"
		}
	}
	for _, r := range ranges {
		if (r.start-overlapMargin) <= line && line <= (r.end+overlapMargin) {
			return "overlap"
		}
	}
	return ""
}

// BestRange returns the range on fe that best covers line: the tightest
// exactly-containing range if one exists, otherwise the nearest range by
// distance to either endpoint. Returns nil if fe has no ranges at all.
func BestRange(fe *model.FileEntry, line int) *model.MatchedRange {
	ranges := collectRanges(fe)
	if len(ranges) == 0 {
		return nil
	}

	var best *lineRange
	bestDistance := -1 // -1 means "no candidate yet"
	bestIsExact := false

	for i := range ranges {
		r := &ranges[i]
		if r.start <= line && line <= r.end {
			span := r.end - r.start
			if !bestIsExact || best == nil || span < (best.end-best.start) {
				best = r
				bestIsExact = true
				bestDistance = 0
			}
			continue
		}
		if bestIsExact {
			continue
		}
		dist := min(abs(line-r.start), abs(line-r.end))
		if bestDistance == -1 || dist < bestDistance {
			best = r
			bestDistance = dist
		}
	}

	if best == nil {
		return nil
	}
	return &model.MatchedRange{StartLine: best.start, EndLine: best.end}
}

// ExtractContentHash finds the content hash that covers line, checking (in
// order of specificity): conversation-level ranges[], conversation-level
// and change-level content_hash fields whose own range contains line, and
// finally the file entry's own content_hash as a fallback.
func ExtractContentHash(fe *model.FileEntry, line int) *string {
	for _, conv := range fe.Conversations {
		for _, r := range conv.Ranges {
			if r.ContentHash != nil && r.StartLine <= line && line <= r.EndLine {
				return r.ContentHash
			}
		}
	}

	for _, conv := range fe.Conversations {
		if conv.ContentHash != nil && rangeContains(conv.StartLine, conv.EndLine, line) {
			return conv.ContentHash
		}
	}

	for _, change := range fe.Changes {
		if change.ContentHash != nil && rangeContains(change.StartLine, change.EndLine, line) {
			return change.ContentHash
		}
	}

	return fe.ContentHash
}

// rangeContains reports whether [start, end] contains line, treating a
// missing bound as "no range info recorded" — which is taken to mean the
// entry covers every line, matching the Python original's behavior of
// defaulting to true when start_line/end_line are absent.
func rangeContains(start, end *int, line int) bool {
	if start == nil || end == nil {
		return true
	}
	return *start <= line && line <= *end
}

// HashesMatch compares two content hashes, tolerating different prefix
// lengths (old 8-char vs new 16-char hashes) by comparing on the shorter
// prefix, and an optional "sha256:" prefix on either side.
func HashesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimPrefix(a, "sha256:"))
	b = strings.ToLower(strings.TrimPrefix(b, "sha256:"))

	minLen := min(len(a), len(b))
	if minLen == 0 {
		return false
	}
	return a[:minLen] == b[:minLen]
}

// IsPrefixMatch reports whether one SHA is a prefix of the other, handling
// abbreviated SHAs. Prefixes shorter than 7 characters are never considered
// a meaningful match.
func IsPrefixMatch(shaA, shaB string) bool {
	minLen := min(len(shaA), len(shaB))
	if minLen < 7 {
		return false
	}
	return shaA[:minLen] == shaB[:minLen]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
