package elasticsearch

import (
	"fmt"
	"strings"
)

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Status int            `json:"status"`
	Error  *bulkItemCause `json:"error,omitempty"`
}

type bulkItemCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkItemError describes one document the cluster refused.
type BulkItemError struct {
	Position int
	Index    string
	ID       string
	Status   int
	Type     string
	Reason   string
}

// BulkError reports a bulk submission in which some documents were
// rejected. The accepted documents stay indexed.
type BulkError struct {
	Total  int
	Failed []BulkItemError
}

func (e *BulkError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bulk: %d of %d documents rejected", len(e.Failed), e.Total)
	if len(e.Failed) > 0 {
		first := e.Failed[0]
		fmt.Fprintf(&b, "; first at position %d (id %q): %s: %s", first.Position, first.ID, first.Type, first.Reason)
	}
	return b.String()
}

func newBulkError(res bulkResponse, total int) *BulkError {
	bulkErr := &BulkError{Total: total}
	for i, item := range res.Items {
		for _, outcome := range item {
			if outcome.Error == nil {
				continue
			}
			bulkErr.Failed = append(bulkErr.Failed, BulkItemError{
				Position: i,
				Index:    outcome.Index,
				ID:       outcome.ID,
				Status:   outcome.Status,
				Type:     outcome.Error.Type,
				Reason:   outcome.Error.Reason,
			})
		}
	}
	return bulkErr
}
