package model

// MatchedRange is the range on the winning trace's matched file entry that
// covers the blamed line, per spec section 4.4.
type MatchedRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// AttributionResult is the per-blame-segment output of the attribution
// engine (spec section 3). Tier is nil when no attribution could be made.
type AttributionResult struct {
	StartLine           int            `json:"start_line"`
	EndLine             int            `json:"end_line"`
	Tier                *int           `json:"tier"`
	Confidence          float64        `json:"confidence"`
	TraceID             *string        `json:"trace_id"`
	ConversationURL     *string        `json:"conversation_url,omitempty"`
	ConversationContent *string        `json:"conversation_content,omitempty"`
	ContributorType     string         `json:"contributor_type,omitempty"`
	ModelID             *string        `json:"model_id,omitempty"`
	Tool                map[string]any `json:"tool,omitempty"`
	MatchedRange        *MatchedRange  `json:"matched_range,omitempty"`
	ContentHashMatch    bool           `json:"content_hash_match"`
	CommitLinkMatch     bool           `json:"commit_link_match"`
	Signals             []string       `json:"signals"`
}

// NoAttribution returns a blank result for a blame segment that could not
// be attributed, covering [startLine, endLine].
func NoAttribution(startLine, endLine int) AttributionResult {
	return AttributionResult{
		StartLine: startLine,
		EndLine:   endLine,
		Signals:   []string{},
	}
}

// BlameLine is one line the caller wants attributed: the blame commit and
// (optionally) its parent, content hash, and timestamp, as reported by the
// caller's own `git blame` run. The service never reads source from disk.
type BlameLine struct {
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	CommitSHA   string  `json:"commit_sha"`
	ParentSHA   *string `json:"parent_sha,omitempty"`
	ContentHash *string `json:"content_hash,omitempty"`
	Timestamp   *string `json:"timestamp,omitempty"`
}
