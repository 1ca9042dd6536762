package mcp

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/model"
)

type interaction struct {
	query, response string
	helpful         bool
}

type fakeLearner struct {
	suggestions  []model.Suggestion
	predictions  []string
	recent       []string
	explanations map[string]string

	lastContext  model.Context
	interactions []interaction
	errors       [][2]string
}

func (f *fakeLearner) SuggestNext(ctx model.Context) []model.Suggestion {
	f.lastContext = ctx
	return f.suggestions
}

func (f *fakeLearner) ExplainError(errText string) (string, bool) {
	e, ok := f.explanations[errText]
	return e, ok
}

func (f *fakeLearner) PredictIntent(string) []string { return f.predictions }

func (f *fakeLearner) RecentCommands(n int) []string {
	if len(f.recent) > n {
		return f.recent[len(f.recent)-n:]
	}
	return f.recent
}

func (f *fakeLearner) RecordAIInteraction(query, response string, helpful bool) {
	f.interactions = append(f.interactions, interaction{query, response, helpful})
}

func (f *fakeLearner) RecordError(errText, command string) {
	f.errors = append(f.errors, [2]string{errText, command})
}

func (f *fakeLearner) Stats() learning.Stats {
	return learning.Stats{Enabled: true, Running: true, ModelVersion: 3}
}

// callTool invokes the named tool handler and returns the typed result.
func callTool(s *Server, name string, args json.RawMessage) (any, error) {
	for _, tool := range s.tools {
		if tool.Name == name {
			return tool.Handler(args)
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

func fixedClock(hour int) Option {
	return WithClock(func() time.Time {
		return time.Date(2026, 5, 20, hour, 0, 0, 0, time.Local)
	})
}

func TestSuggest_DefaultsFromRecentCommands(t *testing.T) {
	f := &fakeLearner{
		recent: []string{"cd app", "git pull"},
		suggestions: []model.Suggestion{
			{Command: "make", Confidence: 0.9, Source: "sequence"},
			{Command: "go test ./...", Confidence: 0.5, Source: "ngram"},
		},
	}
	s := NewServer(f, "test", fixedClock(14))

	res, err := callTool(s, "suggest_next_command", json.RawMessage(`{"working_dir":"/src/app","limit":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := res.(SuggestResult)
	if len(got.Suggestions) != 1 || got.Suggestions[0].Command != "make" {
		t.Errorf("expected only the top suggestion, got %+v", got.Suggestions)
	}
	if f.lastContext.LastCommand != "git pull" {
		t.Errorf("expected last command from recent history, got %q", f.lastContext.LastCommand)
	}
	if f.lastContext.Hour != 14 {
		t.Errorf("expected hour 14, got %d", f.lastContext.Hour)
	}
	if f.lastContext.WorkingDir != "/src/app" {
		t.Errorf("expected working dir passed through, got %q", f.lastContext.WorkingDir)
	}
}

func TestSuggest_EmptyIsNotNull(t *testing.T) {
	s := NewServer(&fakeLearner{}, "test")
	res, err := callTool(s, "suggest_next_command", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := json.Marshal(res)
	if string(data) != `{"suggestions":[]}` {
		t.Errorf("expected empty list, got %s", data)
	}
}

func TestSuggest_RejectsUnknownShape(t *testing.T) {
	s := NewServer(&fakeLearner{}, "test")
	if _, err := callTool(s, "suggest_next_command", json.RawMessage(`{"limit":"many"}`)); err == nil {
		t.Error("expected error for a non-integer limit")
	}
}

func TestExplainError(t *testing.T) {
	f := &fakeLearner{explanations: map[string]string{
		"permission denied": "Previously fixed with: sudo make install",
	}}
	s := NewServer(f, "test")

	res, err := callTool(s, "explain_error", json.RawMessage(`{"error":"permission denied"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := res.(ExplainResult)
	if !got.Found || got.Explanation != "Previously fixed with: sudo make install" {
		t.Errorf("unexpected result %+v", got)
	}

	res, err = callTool(s, "explain_error", json.RawMessage(`{"error":"segfault"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.(ExplainResult).Found {
		t.Error("expected no explanation for an unknown error")
	}

	if _, err := callTool(s, "explain_error", json.RawMessage(`{"error":"  "}`)); err == nil {
		t.Error("expected error for blank error text")
	}
}

func TestPredictCommand(t *testing.T) {
	s := NewServer(&fakeLearner{predictions: []string{"ls -la", "ls"}}, "test")
	res, err := callTool(s, "predict_command", json.RawMessage(`{"text":"list files"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := res.(PredictResult).Commands
	if len(got) != 2 || got[0] != "ls -la" {
		t.Errorf("unexpected predictions %v", got)
	}
}

func TestRecordInteraction(t *testing.T) {
	f := &fakeLearner{}
	s := NewServer(f, "test")

	if _, err := callTool(s, "record_interaction", json.RawMessage(`{"query":"list pods","response":"kubectl get pods","helpful":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.interactions) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(f.interactions))
	}
	want := interaction{"list pods", "kubectl get pods", true}
	if f.interactions[0] != want {
		t.Errorf("got %+v, want %+v", f.interactions[0], want)
	}

	if _, err := callTool(s, "record_interaction", json.RawMessage(`{"response":"x"}`)); err == nil {
		t.Error("expected error without a query")
	}
	if len(f.interactions) != 1 {
		t.Errorf("rejected call must not record, got %d interactions", len(f.interactions))
	}
}

func TestRecordError(t *testing.T) {
	f := &fakeLearner{}
	s := NewServer(f, "test")
	if _, err := callTool(s, "record_error", json.RawMessage(`{"error":"no such file","command":"cat x"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.errors) != 1 || f.errors[0] != [2]string{"no such file", "cat x"} {
		t.Errorf("unexpected recorded errors %v", f.errors)
	}
}

func TestLearningStats(t *testing.T) {
	s := NewServer(&fakeLearner{}, "test")
	res, err := callTool(s, "learning_stats", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.(learning.Stats).ModelVersion != 3 {
		t.Errorf("unexpected stats %+v", res)
	}
}
