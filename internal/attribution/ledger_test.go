package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerLookup_Match(t *testing.T) {
	ledger := map[string]any{
		"ranges": []any{
			map[string]any{"start_line": float64(10), "end_line": float64(20), "trace_id": "T1"},
		},
	}

	traceID, ok := ledgerLookup(ledger, 12, 18)
	assert.True(t, ok)
	assert.Equal(t, "T1", traceID)
}

func TestLedgerLookup_OutsideRange(t *testing.T) {
	ledger := map[string]any{
		"ranges": []any{
			map[string]any{"start_line": float64(10), "end_line": float64(20), "trace_id": "T1"},
		},
	}
	_, ok := ledgerLookup(ledger, 25, 30)
	assert.False(t, ok)
}

func TestLedgerLookup_NilLedger(t *testing.T) {
	_, ok := ledgerLookup(nil, 1, 10)
	assert.False(t, ok)
}

func TestLedgerLookup_MalformedEntriesSkipped(t *testing.T) {
	ledger := map[string]any{
		"ranges": []any{
			"not-a-map",
			map[string]any{"start_line": "not-a-number", "end_line": float64(20), "trace_id": "T1"},
			map[string]any{"start_line": float64(10), "end_line": float64(20), "trace_id": ""},
			map[string]any{"start_line": float64(10), "end_line": float64(20), "trace_id": "T2"},
		},
	}
	traceID, ok := ledgerLookup(ledger, 12, 18)
	assert.True(t, ok)
	assert.Equal(t, "T2", traceID)
}

func TestLedgerLookup_MissingRangesKey(t *testing.T) {
	_, ok := ledgerLookup(map[string]any{"unrelated": "value"}, 1, 10)
	assert.False(t, ok)
}

func TestLedgerLookup_PartialOverlapDoesNotMatch(t *testing.T) {
	// The blamed segment must be fully contained in the ledger range.
	ledger := map[string]any{
		"ranges": []any{
			map[string]any{"start_line": float64(10), "end_line": float64(20), "trace_id": "T1"},
		},
	}
	_, ok := ledgerLookup(ledger, 5, 15)
	assert.False(t, ok)
}
