package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/model"
)

// Learner is the part of the learning system the tools use.
type Learner interface {
	SuggestNext(ctx model.Context) []model.Suggestion
	ExplainError(errText string) (string, bool)
	PredictIntent(partial string) []string
	RecentCommands(n int) []string
	RecordAIInteraction(query, response string, wasHelpful bool)
	RecordError(errText, command string)
	Stats() learning.Stats
}

// SuggestResult lists ranked next-command suggestions.
type SuggestResult struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// ExplainResult carries a learned fix for an error, if there is one.
type ExplainResult struct {
	Found       bool   `json:"found"`
	Explanation string `json:"explanation,omitempty"`
}

// PredictResult lists commands matching a description or prefix.
type PredictResult struct {
	Commands []string `json:"commands"`
}

// RecordResult acknowledges a recorded event.
type RecordResult struct {
	Recorded bool `json:"recorded"`
}

var (
	noArgsSchema  = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
	suggestSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"last_command":{"type":"string","description":"Previous command (default: last recorded)"},` +
		`"working_dir":{"type":"string","description":"Current working directory"},` +
		`"partial_input":{"type":"string","description":"What has been typed so far"},` +
		`"current_error":{"type":"string","description":"Error currently on screen"},` +
		`"limit":{"type":"integer","description":"Maximum suggestions (default 5)"}},"additionalProperties":false}`)
	explainSchema = json.RawMessage(`{"type":"object","properties":{"error":{"type":"string"}},"required":["error"],"additionalProperties":false}`)
	predictSchema = json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"Description or command prefix"}},"required":["text"],"additionalProperties":false}`)
	interactSchema = json.RawMessage(`{"type":"object","properties":{` +
		`"query":{"type":"string"},"response":{"type":"string"},"helpful":{"type":"boolean"}},` +
		`"required":["query"],"additionalProperties":false}`)
	errorSchema = json.RawMessage(`{"type":"object","properties":{"error":{"type":"string"},"command":{"type":"string"}},"required":["error"],"additionalProperties":false}`)
)

func addTools(s *Server) {
	s.registerTool(toolDef{
		Name:        "suggest_next_command",
		Description: "Rank likely next shell commands from the user's learned habits.",
		InputSchema: suggestSchema,
		Handler:     s.handleSuggest,
	})
	s.registerTool(toolDef{
		Name:        "explain_error",
		Description: "Return the fix the user previously applied for a similar error.",
		InputSchema: explainSchema,
		Handler:     s.handleExplain,
	})
	s.registerTool(toolDef{
		Name:        "predict_command",
		Description: "Map a natural-language description or command prefix to learned commands.",
		InputSchema: predictSchema,
		Handler:     s.handlePredict,
	})
	s.registerTool(toolDef{
		Name:        "record_interaction",
		Description: "Record an assistant query and response so the user's intents can be learned. Secrets are redacted.",
		InputSchema: interactSchema,
		Handler:     s.handleRecordInteraction,
	})
	s.registerTool(toolDef{
		Name:        "record_error",
		Description: "Record an error the user hit, with the command that produced it. Secrets are redacted.",
		InputSchema: errorSchema,
		Handler:     s.handleRecordError,
	})
	s.registerTool(toolDef{
		Name:        "learning_stats",
		Description: "Model version, table sizes and buffered events of the local learning system.",
		InputSchema: noArgsSchema,
		Handler:     s.handleStats,
	})
}

func decodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) handleSuggest(args json.RawMessage) (any, error) {
	var p struct {
		LastCommand  string `json:"last_command"`
		WorkingDir   string `json:"working_dir"`
		PartialInput string `json:"partial_input"`
		CurrentError string `json:"current_error"`
		Limit        int    `json:"limit"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 5
	}

	ctx := model.Context{
		WorkingDir:     p.WorkingDir,
		LastCommand:    p.LastCommand,
		RecentCommands: s.learner.RecentCommands(5),
		Hour:           s.now().Hour(),
		PartialInput:   p.PartialInput,
		CurrentError:   p.CurrentError,
	}
	if ctx.LastCommand == "" && len(ctx.RecentCommands) > 0 {
		ctx.LastCommand = ctx.RecentCommands[len(ctx.RecentCommands)-1]
	}

	suggestions := s.learner.SuggestNext(ctx)
	if len(suggestions) > p.Limit {
		suggestions = suggestions[:p.Limit]
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}
	return SuggestResult{Suggestions: suggestions}, nil
}

func (s *Server) handleExplain(args json.RawMessage) (any, error) {
	var p struct {
		Error string `json:"error"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Error) == "" {
		return nil, errors.New("error is required")
	}
	explanation, ok := s.learner.ExplainError(p.Error)
	return ExplainResult{Found: ok, Explanation: explanation}, nil
}

func (s *Server) handlePredict(args json.RawMessage) (any, error) {
	var p struct {
		Text string `json:"text"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	commands := s.learner.PredictIntent(p.Text)
	if commands == nil {
		commands = []string{}
	}
	return PredictResult{Commands: commands}, nil
}

func (s *Server) handleRecordInteraction(args json.RawMessage) (any, error) {
	var p struct {
		Query    string `json:"query"`
		Response string `json:"response"`
		Helpful  bool   `json:"helpful"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, errors.New("query is required")
	}
	s.learner.RecordAIInteraction(p.Query, p.Response, p.Helpful)
	return RecordResult{Recorded: true}, nil
}

func (s *Server) handleRecordError(args json.RawMessage) (any, error) {
	var p struct {
		Error   string `json:"error"`
		Command string `json:"command"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Error) == "" {
		return nil, errors.New("error is required")
	}
	s.learner.RecordError(p.Error, p.Command)
	return RecordResult{Recorded: true}, nil
}

func (s *Server) handleStats(json.RawMessage) (any, error) {
	return s.learner.Stats(), nil
}
