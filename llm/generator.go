// Package llm wraps the chat-completion provider behind a contract the
// workflow engine relies on: generation never fails to its caller. Every
// provider error is classified into an enumerated failure kind and
// converted into a fixed fallback answer tagged with the failure category,
// so an LLM outage degrades one node's text instead of aborting a graph.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/log"
)

// FailureKind enumerates how an outbound generation call can fail.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNetwork
	FailureAuth
	FailureRateLimit
	FailureMalformed
	FailureContextOverflow
	FailureBadRequest
	FailureEmpty
	FailureUnknown
)

// DefaultFallback is the user-facing answer substituted when the model
// service is unavailable and the request carries no task-specific one.
const DefaultFallback = "抱歉，当前模型服务不可用。请稍后重试或联系系统管理员。"

func (k FailureKind) annotation() string {
	switch k {
	case FailureNetwork:
		return "网络连接错误"
	case FailureAuth, FailureRateLimit:
		return "API服务错误"
	case FailureMalformed:
		return "JSON解析错误"
	case FailureContextOverflow:
		return "输入内容超出最大上下文，请缩短"
	case FailureBadRequest:
		return "请求参数有误"
	case FailureEmpty:
		return "API调用结果为空"
	default:
		return "未知错误"
	}
}

// classify maps a provider error onto a FailureKind so handling stays
// exhaustive-checkable instead of a broad catch-all.
func classify(err error) FailureKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403, 404:
			return FailureAuth
		case 429:
			return FailureRateLimit
		case 400:
			msg := strings.ToLower(apiErr.Message)
			if strings.Contains(msg, "maximum context length") || strings.Contains(msg, "too many tokens") {
				return FailureContextOverflow
			}
			return FailureBadRequest
		}
		return FailureUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureNetwork
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return FailureMalformed
	}

	return FailureUnknown
}

// Request carries everything one generation call needs. Fallback is the
// task-specific degraded answer; empty means DefaultFallback.
type Request struct {
	Query        string
	SystemPrompt string
	Temperature  float32
	ModelName    string
	History      []Message
	Fallback     string
	UseCoT       bool
}

func (r Request) fallbackText(kind FailureKind) string {
	base := r.Fallback
	if base == "" {
		base = DefaultFallback
	}
	return base + "<error>（" + kind.annotation() + "）</error>"
}

// Generator talks to OpenAI-compatible endpoints selected through the
// model table in the active configuration.
type Generator struct {
	cfg    *config.Holder
	logger log.Logger

	// newClient is swapped in tests to avoid real network calls.
	newClient func(mc config.ModelConfig) *openai.Client
}

func NewGenerator(cfg *config.Holder) *Generator {
	return &Generator{
		cfg:    cfg,
		logger: log.GetDefaultLogger(),
		newClient: func(mc config.ModelConfig) *openai.Client {
			clientCfg := openai.DefaultConfig(mc.APIKey)
			clientCfg.BaseURL = mc.APIBaseURL
			return openai.NewClientWithConfig(clientCfg)
		},
	}
}

// GenerateStream returns a channel of answer fragments. The channel is
// always closed after the final fragment; on any failure it carries
// exactly one tagged fallback string. Reasoning output is delivered in
// fenced ```thinking blocks.
func (g *Generator) GenerateStream(ctx context.Context, req Request) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		send := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		mc := g.cfg.Get().Model(req.ModelName, req.UseCoT)
		messages := buildMessages(req.SystemPrompt, req.Query, req.History, req.ModelName, mc)
		client := g.newClient(mc)

		stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       mc.ModelName,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   mc.MaxTokens,
			Stream:      true,
		})
		if err != nil {
			kind := classify(err)
			g.logger.Error("llm stream request failed (%v): %v", kind.annotation(), err)
			send(req.fallbackText(kind))
			return
		}
		defer stream.Close()

		thinking := newThinkingStream(mc.ModelName, modelReasoning{nonstandard: mc.ReasoningNonstandard})
		hasContent := false
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				kind := classify(err)
				g.logger.Error("llm stream recv failed (%v): %v", kind.annotation(), err)
				send(req.fallbackText(kind))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			for _, frag := range thinking.feed(delta.ReasoningContent, delta.Content) {
				hasContent = true
				if !send(frag) {
					return
				}
			}
		}
		for _, frag := range thinking.flush() {
			hasContent = true
			if !send(frag) {
				return
			}
		}

		if !hasContent {
			g.logger.Warn("llm stream returned no content for model %s", mc.ModelName)
			send(req.fallbackText(FailureEmpty))
		}
	}()

	return out
}

// GenerateBlocking returns the full answer in one shot, reasoning blocks
// removed. Like GenerateStream it never fails: errors come back as the
// tagged fallback string.
func (g *Generator) GenerateBlocking(ctx context.Context, req Request) string {
	mc := g.cfg.Get().Model(req.ModelName, req.UseCoT)
	messages := buildMessages(req.SystemPrompt, req.Query, req.History, req.ModelName, mc)
	client := g.newClient(mc)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       mc.ModelName,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		kind := classify(err)
		g.logger.Error("llm blocking request failed (%v): %v", kind.annotation(), err)
		return req.fallbackText(kind)
	}
	if len(resp.Choices) == 0 {
		return req.fallbackText(FailureEmpty)
	}
	answer := RemoveThinkingBlocks(resp.Choices[0].Message.Content)
	if strings.TrimSpace(answer) == "" {
		base := req.Fallback
		if base == "" {
			base = DefaultFallback
		}
		return base + "（API调用结果为空）"
	}
	return answer
}
