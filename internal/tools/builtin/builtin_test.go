package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/praxis/internal/tools"
)

func registry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	if err := r.RegisterAll(Descriptors()); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return r
}

func TestCurrentTime(t *testing.T) {
	r := registry(t)

	result, _ := r.Execute(context.Background(), "current_time", map[string]any{}, nil, "")
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result.Content)
	}
	body := result.Content[0].Text
	if _, err := time.Parse(time.RFC3339, body); err != nil {
		t.Errorf("body %q is not RFC3339: %v", body, err)
	}

	result, _ = r.Execute(context.Background(), "current_time",
		map[string]any{"timezone": "Not/AZone"}, nil, "")
	if !result.IsError {
		t.Error("unknown timezone accepted")
	}
}

func TestCalculate(t *testing.T) {
	r := registry(t)

	cases := []struct {
		op   string
		a, b float64
		want string
	}{
		{"add", 2, 3, "5"},
		{"sub", 2, 3, "-1"},
		{"mul", 4, 2.5, "10"},
		{"div", 9, 3, "3"},
	}
	for _, tc := range cases {
		result, _ := r.Execute(context.Background(), "calculate",
			map[string]any{"op": tc.op, "a": tc.a, "b": tc.b}, nil, "")
		if result.IsError {
			t.Errorf("%s: error %+v", tc.op, result.Content)
			continue
		}
		if got := result.Content[0].Text; got != tc.want {
			t.Errorf("%s(%g,%g) = %q, want %q", tc.op, tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCalculateDivisionByZero(t *testing.T) {
	r := registry(t)

	result, _ := r.Execute(context.Background(), "calculate",
		map[string]any{"op": "div", "a": 1.0, "b": 0.0}, nil, "")
	if !result.IsError {
		t.Fatal("division by zero accepted")
	}
	if !strings.Contains(result.Content[0].Text, "division by zero") {
		t.Errorf("diagnostic = %q", result.Content[0].Text)
	}
}

func TestCalculateRejectsMissingInput(t *testing.T) {
	r := registry(t)

	result, _ := r.Execute(context.Background(), "calculate",
		map[string]any{"op": "add"}, nil, "")
	if !result.IsError {
		t.Fatal("schema validation passed without required fields")
	}
}
