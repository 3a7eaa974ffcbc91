package stream

import (
	"fmt"
	"time"
)

// correlateSearches merges the lifecycle map and the output-item map into
// one de-duplicated record list, in first-seen item order. Lifecycle
// fields win for status and position, output-item fields win for content.
// Items seen only via lifecycle events get a synthesized placeholder query
// (policy permitting) so search activity is never silently dropped.
// Returns nil when no searches were observed; the record then omits the
// web_searches field entirely.
func correlateSearches(s *Session, now time.Time) []WebSearchRecord {
	if len(s.searchOrder) == 0 {
		return nil
	}

	records := make([]WebSearchRecord, 0, len(s.searchOrder))
	for _, itemID := range s.searchOrder {
		rec := WebSearchRecord{ItemID: itemID, Timestamp: now}

		lc, hasLifecycle := s.searchLifecycle[itemID]
		item, hasItem := s.searchItems[itemID]

		if hasLifecycle {
			rec.Status = lc.Status
			rec.OutputIndex = lc.OutputIndex
			rec.SequenceNumber = lc.SequenceNumber
		}
		if hasItem {
			rec.Query = item.Query
			rec.ActionType = item.ActionType
			rec.Sources = item.Sources
			rec.URL = item.URL
			rec.Pattern = item.Pattern
			if !hasLifecycle {
				rec.Status = item.Status
			}
		} else if s.policy.SynthesizeQueries {
			// Observed upstream: the content-bearing output item is
			// sometimes never delivered for a search the lifecycle events
			// announced. Keep the activity visible anyway.
			rec.Query = fmt.Sprintf("[query unavailable, sequence_number=%d]", lc.SequenceNumber)
		}

		records = append(records, rec)
	}
	return records
}
