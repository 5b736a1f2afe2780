package attribution

import (
	"context"

	"github.com/agenttrace/agenttrace/internal/model"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/internal/tracemodel"
)

// buildResult constructs a full AttributionResult from the winning trace,
// enriching model_id/conversation_url/contributor_type by first searching
// the matched file entry's conversations, then every other file entry on
// the same trace, then the other candidate traces — stopping as soon as
// both model_id and conversation_url are found.
func buildResult(
	ctx context.Context,
	db *storage.DB,
	projectID string,
	tier *int,
	confidence float64,
	trace model.StoredTrace,
	filePath string,
	lineNumber int,
	signals []string,
	otherCandidates []model.StoredTrace,
) model.AttributionResult {
	matchedFile := tracemodel.FindMatchingFile(trace.Trace.Files, filePath)

	var matchedRange *model.MatchedRange
	if matchedFile != nil {
		matchedRange = tracemodel.BestRange(matchedFile, lineNumber)
	}

	var modelID *string
	var conversationURL *string
	contributorType := "unknown"

	scanConversations := func(convs []model.Conversation) {
		for _, conv := range convs {
			if conv.Contributor != nil {
				if conv.Contributor.Type != "" && contributorType == "unknown" {
					contributorType = conv.Contributor.Type
				}
				if conv.Contributor.ModelID != "" && modelID == nil {
					id := conv.Contributor.ModelID
					modelID = &id
				}
			}
			if conv.URL != "" && conversationURL == nil {
				url := conv.URL
				conversationURL = &url
			}
			if modelID != nil && conversationURL != nil {
				return
			}
		}
	}

	if matchedFile != nil {
		scanConversations(matchedFile.Conversations)
	}

	if modelID == nil || conversationURL == nil {
		for i := range trace.Trace.Files {
			fe := &trace.Trace.Files[i]
			if fe == matchedFile {
				continue
			}
			scanConversations(fe.Conversations)
			if modelID != nil && conversationURL != nil {
				break
			}
		}
	}

	if (modelID == nil || conversationURL == nil) && len(otherCandidates) > 0 {
		for _, other := range otherCandidates {
			if other.TraceID == trace.TraceID {
				continue
			}
			m, u, ct := extractMeta(other)
			if modelID == nil && m != nil {
				modelID = m
			}
			if conversationURL == nil && u != nil {
				conversationURL = u
			}
			if ct != "" && contributorType == "unknown" {
				contributorType = ct
			}
			if modelID != nil && conversationURL != nil {
				break
			}
		}
	}

	var conversationContent *string
	if conversationURL != nil {
		content, err := db.GetConversationContent(ctx, projectID, *conversationURL)
		if err == nil {
			conversationContent = &content
		}
		// Any error (including storage.ErrNotFound) is non-critical — the
		// attribution itself still stands without the content body.
	}

	if signals == nil {
		signals = []string{}
	}

	traceID := trace.TraceID
	return model.AttributionResult{
		StartLine:           lineNumber,
		EndLine:             lineNumber,
		Tier:                tier,
		Confidence:          confidence,
		TraceID:             &traceID,
		ConversationURL:     conversationURL,
		ConversationContent: conversationContent,
		ContributorType:     contributorType,
		ModelID:             modelID,
		Tool:                trace.Trace.Tool,
		MatchedRange:        matchedRange,
		ContentHashMatch:    containsString(signals, signalContentHash),
		CommitLinkMatch:     containsString(signals, signalCommitLink),
		Signals:             signals,
	}
}

// extractMeta pulls (model_id, conversation_url, contributor_type) from any
// file entry on trace — used to enrich an attribution result from a
// runner-up candidate when the winning trace's own metadata is incomplete.
func extractMeta(trace model.StoredTrace) (modelID, conversationURL *string, contributorType string) {
	for _, fe := range trace.Trace.Files {
		for _, conv := range fe.Conversations {
			if conv.Contributor != nil {
				if conv.Contributor.ModelID != "" && modelID == nil {
					id := conv.Contributor.ModelID
					modelID = &id
				}
				if conv.Contributor.Type != "" && contributorType == "" {
					contributorType = conv.Contributor.Type
				}
			}
			if conv.URL != "" && conversationURL == nil {
				url := conv.URL
				conversationURL = &url
			}
		}
		if modelID != nil && conversationURL != nil {
			return modelID, conversationURL, contributorType
		}
	}
	return modelID, conversationURL, contributorType
}
