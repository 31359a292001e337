package jsonutil

import "testing"

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"leading whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"multiline body", "```json\n{\n  \"a\": 1\n}\n```", "{\n  \"a\": 1\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON(`Here is the result: {"risk":"High"} hope that helps!`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != `{"risk":"High"}` {
		t.Errorf("got %q", got)
	}

	got, err = ExtractJSON(`[1, 2, 3] trailing prose`)
	if err != nil {
		t.Fatalf("extract array: %v", err)
	}
	if got != `[1, 2, 3]` {
		t.Errorf("got %q", got)
	}

	if _, err := ExtractJSON("no json here at all"); err == nil {
		t.Error("expected an error for json-free text")
	}
}

func TestExtractRaw(t *testing.T) {
	raw, err := ExtractRaw("```json\n{\"risk\":\"High\"}\n```")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"risk":"High"}` {
		t.Errorf("got %s", raw)
	}

	if _, err := ExtractRaw(`{"broken": `); err == nil {
		t.Error("expected an error for truncated JSON")
	}
	if _, err := ExtractRaw("just prose"); err == nil {
		t.Error("expected an error for prose")
	}
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Risk string `json:"risk"`
	}
	got, err := ParseJSON[payload]("The analysis:\n```json\n{\"risk\":\"Severe\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Risk != "Severe" {
		t.Errorf("risk = %q", got.Risk)
	}

	if _, err := ParseJSON[payload](`{"risk": 42}`); err == nil {
		t.Error("expected a type mismatch error")
	}
}
