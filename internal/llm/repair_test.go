package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid untouched", `{"a":1}`, `{"a":1}`},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Sure! Here it is: {"a":1} Hope this helps.`, `{"a":1}`},
		{"smart quote delimiters", `{“a”:“b”}`, `{"a":"b"}`},
		{"smart quotes inside string kept", `{"claim":"He said “yes” twice",}`, `{"claim":"He said “yes” twice"}`},
		{"trailing commas", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"comma inside string kept", `{"a":"x, ]"}`, `{"a":"x, ]"}`},
		{"unterminated string", `{"claims":["one","tw`, `{"claims":["one","tw"]}`},
		{"unbalanced brackets", `{"claims":["one"`, `{"claims":["one"]}`},
		{"truncated after comma", `{"claims":["one",`, `{"claims":["one"]}`},
		{"top-level array", `result: [1, 2]`, `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Repair(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestRepair_NoJSON(t *testing.T) {
	_, err := Repair(`I cannot help with that.`)
	assert.Error(t, err)
}

func TestParseJSON_RepairsOnce(t *testing.T) {
	var out TopicsAndClaims
	raw := "```json\n{\"generalTopic\": \"health\", \"claims\": [\"Sugar intake rose 20% in 2020.\",],}\n```"
	if err := ParseJSON(raw, &out); err != nil {
		t.Fatalf("Expected repaired parse, got %v", err)
	}
	if out.GeneralTopic != "health" || len(out.Claims) != 1 {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestParseJSON_QuotedClaimSurvivesRepair(t *testing.T) {
	var out TopicsAndClaims
	raw := "{\"claims\": [\"The minister said “coffee is safe” in 2023\",], \"generalTopic\": \"Health\"}"
	require.NoError(t, ParseJSON(raw, &out))
	assert.Equal(t, []string{"The minister said “coffee is safe” in 2023"}, out.Claims)
	assert.Equal(t, "Health", out.GeneralTopic)
}

func TestParseJSON_Malformed(t *testing.T) {
	var out TopicsAndClaims
	err := ParseJSON("no json here", &out)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Fatalf("Expected ErrMalformedJSON for prose, got %v", err)
	}

	err = ParseJSON(`{"generalTopic": ["health", "diet"]}`, &out)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Fatalf("Expected ErrMalformedJSON for a type mismatch, got %v", err)
	}
}
