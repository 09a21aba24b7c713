package query

import (
	"encoding/json"
	"testing"
)

func TestNewRowPreservesColumnOrder(t *testing.T) {
	row := NewRow(
		[]string{"project_name", "architect_name", "id"},
		[]any{"赛博都市：觉醒", "张三", int64(1)},
	)
	encoded, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"project_name":"赛博都市：觉醒","architect_name":"张三","id":1}`
	if string(encoded) != want {
		t.Fatalf("Marshal() = %s, want %s", encoded, want)
	}
}

func TestNewRowFillsMissingValuesWithNull(t *testing.T) {
	row := NewRow([]string{"a", "b"}, []any{"x"})
	value, ok := row.Get("b")
	if !ok || value != nil {
		t.Fatalf("Get(b) = %#v ok=%v", value, ok)
	}
}
