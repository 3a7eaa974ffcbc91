package stream

import "time"

// Finalize assembles the consolidated outcome at stream termination
// (completed, failed, or exhausted). Whatever was accumulated is returned
// even after a failure; partial answers beat discarding everything. The
// outcome is cached: finalizing again without new events yields the
// identical result.
func (s *Session) Finalize() Outcome {
	if s.outcome != nil {
		return *s.outcome
	}

	now := time.Now().UTC()
	out := Outcome{
		Text:       s.Text(),
		ResponseID: s.responseID,
	}

	searches := correlateSearches(s, now)
	summary := s.summaryText()

	if len(s.reasoning.parts) > 0 || summary != "" || len(searches) > 0 || len(s.messages) > 0 {
		out.Record = &ReasoningRecord{
			SummaryParts:    append([]string(nil), s.reasoning.parts...),
			CompleteSummary: summary,
			Timestamp:       now,
			ResponseID:      s.responseID,
			WebSearches:     searches,
			MessageData:     append([]MessageItem(nil), s.messages...),
			Usage:           s.usage,
		}
	}

	s.outcome = &out
	return out
}
