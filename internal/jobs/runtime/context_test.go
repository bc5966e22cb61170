package runtime

import (
	"context"
	"math"
	"testing"
)

func TestPayloadString(t *testing.T) {
	jc := NewContext(context.Background(), JobInfo{}, map[string]any{
		"blank":   "   ",
		"num":     float64(42),
		"nan":     math.NaN(),
		"obj":     map[string]any{"x": 1},
		"id":      " v-1 ",
		"videoId": nil,
	}, nil)

	cases := []struct {
		keys []string
		want string
		ok   bool
	}{
		{[]string{"videoId", "id"}, "v-1", true},
		{[]string{"blank", "num"}, "42", true},
		{[]string{"nan", "obj"}, "", false},
		{[]string{"missing"}, "", false},
	}
	for _, tc := range cases {
		got, ok := jc.PayloadString(tc.keys...)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("PayloadString(%v) = (%q, %v), want (%q, %v)", tc.keys, got, ok, tc.want, tc.ok)
		}
	}
}

func TestContextNilSafety(t *testing.T) {
	jc := NewContext(nil, JobInfo{}, nil, nil)
	if jc.Ctx == nil || jc.Payload() == nil {
		t.Fatalf("expected non-nil ctx and payload")
	}
	jc.Progress(10)
	var nilCtx *Context
	nilCtx.Progress(10)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	h := funcHandler{typ: "a", run: func(*Context) (map[string]any, error) { return nil, nil }}
	if err := reg.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(h); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(funcHandler{}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if err := reg.Register(nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
	if types := reg.Types(); len(types) != 1 || types[0] != "a" {
		t.Fatalf("unexpected types: %v", types)
	}
}
