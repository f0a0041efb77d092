package registrar

import (
	"context"
	"strings"
	"testing"
)

func echoHandler(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"echo": args["x"]}, nil
}

func TestRegisterAndCall(t *testing.T) {
	r := New()
	r.Register("herd_echo", "echoes", map[string]ParamDef{
		"x": {Type: "string", Description: "value to echo", Required: true},
	}, echoHandler)

	if !r.Has("herd_echo") {
		t.Fatal("Has(herd_echo) = false")
	}
	result, err := r.Call(context.Background(), "herd_echo", map[string]any{"x": "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result["echo"] != "hi" {
		t.Errorf("result = %+v", result)
	}
}

func TestCallUnknownToolIsFatal(t *testing.T) {
	r := New()
	_, err := r.Call(context.Background(), "herd_nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !strings.Contains(err.Error(), "herd_nope") {
		t.Errorf("error should name the tool: %v", err)
	}
}

func TestReRegisterOverwrites(t *testing.T) {
	r := New()
	r.Register("herd_echo", "v1", nil, echoHandler)
	r.Register("herd_echo", "v2", nil, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"version": 2}, nil
	})

	result, err := r.Call(context.Background(), "herd_echo", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result["version"] != 2 {
		t.Errorf("result = %+v, want the replacement handler", result)
	}
}

func TestListSortedByName(t *testing.T) {
	r := New()
	r.Register("herd_b", "", nil, echoHandler)
	r.Register("herd_a", "", nil, echoHandler)
	r.Register("herd_c", "", nil, echoHandler)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List = %d entries, want 3", len(list))
	}
	for i, want := range []string{"herd_a", "herd_b", "herd_c"} {
		if list[i].Name != want {
			t.Errorf("list[%d].Name = %q, want %q", i, list[i].Name, want)
		}
	}
}
