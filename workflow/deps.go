// Package workflow contains the business nodes, routers and graph
// definitions of the chat platform: knowledge-base Q&A over single or
// multiple files, uploaded-file Q&A, document summary extraction, OA
// invoice compliance checking and the UAV weather assistant. A selector
// maps each incoming request onto one of these graphs.
package workflow

import (
	"context"
	"strconv"
	"time"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/log"
	"github.com/zhisuan/graphchat/retrieval"
)

// Generator produces model answers. Implementations never return errors;
// failures surface as fallback answer text.
type Generator interface {
	GenerateStream(ctx context.Context, req llm.Request) <-chan string
	GenerateBlocking(ctx context.Context, req llm.Request) string
}

// Retriever queries the knowledge-base backend.
type Retriever interface {
	Query(ctx context.Context, req retrieval.Request) ([]retrieval.Chunk, error)
}

// Extractor extracts text content from uploaded files.
type Extractor interface {
	Extract(ctx context.Context, filePaths []string, forceOCR *bool, kbToken string) (string, error)
}

// WeatherService looks up weather conditions; an empty map means the
// lookup failed.
type WeatherService interface {
	Get(ctx context.Context, location string) map[string]any
}

// ExpenseService fetches OA expense-report records.
type ExpenseService interface {
	Fetch(ctx context.Context, detailCode string, forceOCR bool) (map[string]any, error)
}

// Deps bundles every collaborator a workflow node may need.
type Deps struct {
	Generator Generator
	Retriever Retriever
	Extractor Extractor
	Weather   WeatherService
	Expense   ExpenseService
	Config    *config.Holder
	Logger    log.Logger
	Tokens    retrieval.TokenCounter
}

// Engine owns the node implementations. All nodes are methods on Engine so
// they share collaborators without global state.
type Engine struct {
	deps Deps
}

func NewEngine(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = log.GetDefaultLogger()
	}
	if deps.Tokens == nil {
		deps.Tokens = retrieval.CountTokens
	}
	return &Engine{deps: deps}
}

func (e *Engine) cfg() *config.Config { return e.deps.Config.Get() }

// timeNow is swapped out in tests that assert on dates.
var timeNow = time.Now

// intOr reads an int state key with a fallback for missing keys.
func intOr(st graph.State, key string, def int) int {
	if !st.Has(key) {
		return def
	}
	return st.GetInt(key)
}

func floatOr(st graph.State, key string, def float64) float64 {
	if !st.Has(key) {
		return def
	}
	return st.GetFloat(key)
}

// historyFromState reads conversation history out of the state, accepting
// both the typed form and the JSON-decoded one.
func historyFromState(st graph.State) []llm.Message {
	switch h := st[KeyHistory].(type) {
	case []llm.Message:
		return h
	case []any:
		var out []llm.Message
		for _, item := range h {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role != "" {
				out = append(out, llm.Message{Role: role, Content: content})
			}
		}
		return out
	}
	return nil
}

// temperatureFromState returns the request temperature, defaulting to 0.1.
func temperatureFromState(st graph.State) float32 {
	switch v := st[KeyTemperature].(type) {
	case float64:
		return float32(v)
	case float32:
		return v
	case int:
		return float32(v)
	case string:
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return 0.1
}

// forceOCRFromState interprets the force_ocr request flag; nil means
// "decide automatically".
func forceOCRFromState(st graph.State) *bool {
	switch v := st[KeyForceOCR].(type) {
	case bool:
		return &v
	case string:
		b := v == "true" || v == "True"
		return &b
	}
	return nil
}

// systemPromptOrDefault resolves the effective system prompt.
func (e *Engine) systemPromptOrDefault(st graph.State) string {
	if sp := st.GetString(KeySystemPrompt); sp != "" {
		return sp
	}
	return e.cfg().DefaultSystemPrompt
}
