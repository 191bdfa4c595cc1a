package qdrant

import (
	"errors"
	"testing"
)

func TestTranslateFilterMapSubset(t *testing.T) {
	filter := map[string]any{
		"studentId": "student-1",
		"sessionId": map[string]any{
			"$in": []string{"session-1", "session-2"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	studentCond := findConditionByKey(got.Must, "studentId")
	if studentCond == nil {
		t.Fatalf("missing studentId condition")
	}
	if m, ok := studentCond["match"].(map[string]any); !ok || m["value"] != "student-1" {
		t.Fatalf("studentId match: got=%v", studentCond["match"])
	}

	sessionCond := findConditionByKey(got.Must, "sessionId")
	if sessionCond == nil {
		t.Fatalf("missing sessionId condition")
	}
	m, _ := sessionCond["match"].(map[string]any)
	anyVals, ok := m["any"].([]any)
	if !ok || len(anyVals) != 2 || anyVals[0] != "session-1" {
		t.Fatalf("sessionId any values: got=%v", m["any"])
	}
}

func TestTranslateFilterMapRangeAndNot(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"timestamp": map[string]any{"$gte": 1700000000, "$lte": int64(1800000000)},
		"$not":      map[string]any{"sessionId": "session-9"},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 || len(got.MustNot) != 1 {
		t.Fatalf("want 2 must + 1 must_not got=%+v", got)
	}
	cond := findConditionByKey(got.Must, "timestamp")
	r, ok := cond["range"].(map[string]any)
	if !ok {
		t.Fatalf("range type: got=%T", cond["range"])
	}
	if r["gte"] != float64(1700000000) {
		t.Fatalf("gte: got=%v", r["gte"])
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"difficulty": map[string]any{"$gt": 2},
	})
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.Code != OperationErrorUnsupportedFilter {
		t.Fatalf("error code: want=%q got=%q", OperationErrorUnsupportedFilter, opErr.Code)
	}
}

func TestTranslateFilterMapRangeRejectsStrings(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"timestamp": map[string]any{"$gte": "yesterday"},
	})
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("want validation error got=%v", err)
	}
}

func TestTranslateFilterMapStaleChunkCleanup(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"session_id":  "s-1",
		"chunk_index": map[string]any{"$gte": 3},
		"$or":         []any{map[string]any{"kind": "chunk"}, map[string]any{"kind": map[string]any{"$ne": "summary"}}},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 || len(got.Should) != 2 {
		t.Fatalf("want 2 must + 2 should got=%+v", got)
	}
	cond := findConditionByKey(got.Must, "chunk_index")
	if r, _ := cond["range"].(map[string]any); r["gte"] != float64(3) {
		t.Fatalf("chunk_index range: got=%v", cond)
	}
	if m := got.asMap(); m["must_not"] != nil {
		t.Fatalf("empty must_not should be omitted: %v", m)
	}
}

func TestScalarValueKeepsIntegers(t *testing.T) {
	if v, ok := scalarValue(int32(7)); !ok || v != int64(7) {
		t.Fatalf("int32: got=%v ok=%v", v, ok)
	}
	if _, ok := scalarValue([]int{1}); ok {
		t.Fatalf("slices are not scalars")
	}
	if _, ok := scalarValue(nil); ok {
		t.Fatalf("nil is not a scalar")
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}
