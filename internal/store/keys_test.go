package store

import "testing"

func TestKey(t *testing.T) {
	k := Keys{Root: "ns:res"}

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{name: "no parts", parts: nil, want: "ns:res"},
		{name: "record", parts: []any{"widget", "42"}, want: "ns:res:widget:42"},
		{name: "non-string parts", parts: []any{"widget", 7, true}, want: "ns:res:widget:7:true"},
		{name: "set", parts: []any{"widgets"}, want: "ns:res:widgets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := k.Key(tt.parts...); got != tt.want {
				t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestKeyEmptyRoot(t *testing.T) {
	if got := (Keys{}).Key("a", "b"); got != "a:b" {
		t.Errorf("expected a:b, got %q", got)
	}
}

func TestKeyDeterministic(t *testing.T) {
	k := Keys{Root: DefaultRoot}
	if k.Key("widget", "name") != k.Key("widget", "name") {
		t.Fatal("expected identical parts to build identical keys")
	}
	if k.record("widget", "1") == k.Key("widget", "name", "1") {
		t.Error("expected record and index keys to differ")
	}
}
