package tool

import (
	"context"
	"testing"
)

func TestEinoAdapterInfo(t *testing.T) {
	tl, err := New(Config{
		Name:        "search",
		Description: "searches the index",
		Schema: &Schema{
			Properties: map[string]Property{
				"query": {Type: "string", Description: "search query"},
				"limit": {Type: "integer"},
				"tags":  {Type: "array", Items: &Property{Type: "string"}},
			},
			Required: []string{"query"},
		},
		Func: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"hits": []any{args["query"]}}, nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := tl.Eino().Info(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "search" {
		t.Errorf("expected name %q, got %q", "search", info.Name)
	}
	if info.Desc != "searches the index" {
		t.Errorf("unexpected description: %q", info.Desc)
	}

	params, err := info.ParamsOneOf.ToOpenAPIV3()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params == nil {
		t.Fatal("expected parameter schema")
	}
	if _, ok := params.Properties["query"]; !ok {
		t.Error("expected property query in exported schema")
	}
}

func TestEinoAdapterInvokableRun(t *testing.T) {
	tl, err := New(Config{
		Name: "sum",
		Schema: &Schema{
			Properties: map[string]Property{
				"a": {Type: "number"},
				"b": {Type: "number"},
			},
			Required: []string{"a", "b"},
		},
		Func: func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := tl.Eino().InvokableRun(context.Background(), `{"a": 2, "b": 3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "5" {
		t.Errorf("expected %q, got %q", "5", out)
	}

	if _, err := tl.Eino().InvokableRun(context.Background(), `{"a": 2}`); err == nil {
		t.Error("expected validation error for missing argument")
	}

	if _, err := tl.Eino().InvokableRun(context.Background(), `not json`); err == nil {
		t.Error("expected error for malformed arguments")
	}
}
