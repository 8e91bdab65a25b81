package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"api": map[string]any{
			"base_url": "http://localhost:8000",
			"token":    "tok-123",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["api.base_url"] != "http://localhost:8000" {
		t.Errorf("expected api.base_url, got %v", got["api.base_url"])
	}
	if got["api.token"] != "tok-123" {
		t.Errorf("expected api.token=tok-123, got %v", got["api.token"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	got := Flatten(map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
	})
	if got["a.b.c"] != "deep" || len(got) != 1 {
		t.Errorf("expected only a.b.c=deep, got %v", got)
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"output": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected empty nested map to vanish, got %v", got)
	}
}

func TestFlatten_KeepsSlices(t *testing.T) {
	got := Flatten(map[string]any{
		"chat": map[string]any{"title_refresh_seconds": []any{3.0, 6.0, 12.0}},
	})
	s, ok := got["chat.title_refresh_seconds"].([]any)
	if !ok || len(s) != 3 {
		t.Errorf("expected slice value to be kept whole, got %v", got)
	}
}

func TestUnflatten_Nested(t *testing.T) {
	got := Unflatten(map[string]any{
		"chat.target":           "gemini",
		"chat.read_buffer_size": 512.0,
		"log_level":             "debug",
	})
	chat, ok := got["chat"].(map[string]any)
	if !ok {
		t.Fatalf("expected chat map, got %T", got["chat"])
	}
	if chat["target"] != "gemini" || chat["read_buffer_size"] != 512.0 {
		t.Errorf("unexpected chat section %v", chat)
	}
	if got["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", got["log_level"])
	}
}

func TestUnflatten_ScalarReplacedByMap(t *testing.T) {
	got := Unflatten(map[string]any{"a.b": "x"})
	a := got["a"].(map[string]any)
	if a["b"] != "x" {
		t.Errorf("expected a.b=x, got %v", got)
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.gatewaychat",
		"log_level": "debug",
		"api": map[string]any{
			"base_url": "https://gateway.example.com",
			"token":    "tok-abcdef",
		},
		"output": map[string]any{
			"format": "yaml",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] || restored["log_level"] != original["log_level"] {
		t.Errorf("top-level mismatch: %v", restored)
	}
	api := restored["api"].(map[string]any)
	if api["base_url"] != "https://gateway.example.com" || api["token"] != "tok-abcdef" {
		t.Errorf("api mismatch: %v", api)
	}
	if restored["output"].(map[string]any)["format"] != "yaml" {
		t.Errorf("output mismatch: %v", restored["output"])
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"long", "eyJhbGciOiJIUzI1NiJ9.payload.sig9", "***sig9"},
		{"empty", "", ""},
		{"short", "ab", "***ab"},
		{"exactly four", "abcd", "***abcd"},
		{"non-string", 42.0, 42.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{"api.token": tt.value, "api.base_url": "http://x"})
			if got["api.token"] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got["api.token"])
			}
			if got["api.base_url"] != "http://x" {
				t.Errorf("non-secret changed: %v", got["api.base_url"])
			}
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("api.token") {
		t.Error("api.token should be secret")
	}
	if IsSecretKey("api.token_file") {
		t.Error("api.token_file is a path, not a secret")
	}
}

func TestKeysSorted(t *testing.T) {
	got := Keys(map[string]any{"log_level": "info", "api.base_url": "x", "chat.target": "openai"})
	want := []string{"api.base_url", "chat.target", "log_level"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
			break
		}
	}
}
