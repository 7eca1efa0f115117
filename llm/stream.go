package llm

import "strings"

const (
	thinkingBlockMarker = "```thinking\n\n"
	thinkingEndMarker   = "\n\n```\n\n"
	thinkEndFlag        = "</think>"
)

// thinkingStream rewrites a model's delta stream so reasoning output is
// always delivered inside a fenced ```thinking block. Two shapes are
// handled: providers that put reasoning in a dedicated reasoning_content
// delta field, and deepseek-r1 style models that interleave reasoning with
// regular content terminated by a </think> marker.
type thinkingStream struct {
	deepseekCompat bool

	inBlock       bool
	thinkingEnded bool
	buffer        string
}

func newThinkingStream(modelName string, mc modelReasoning) *thinkingStream {
	lower := strings.ToLower(modelName)
	return &thinkingStream{
		deepseekCompat: strings.Contains(lower, "deepseek-r") ||
			strings.Contains(lower, "deepseek_r") ||
			mc.nonstandard,
	}
}

type modelReasoning struct{ nonstandard bool }

// feed consumes one delta and returns the text fragments to forward.
func (t *thinkingStream) feed(reasoning, content string) []string {
	var out []string

	if reasoning != "" {
		if !t.inBlock {
			out = append(out, thinkingBlockMarker)
			t.inBlock = true
		}
		return append(out, reasoning)
	}

	if t.deepseekCompat && content != "" && !t.thinkingEnded {
		t.buffer += content
		idx := strings.Index(t.buffer, thinkEndFlag)
		if idx < 0 {
			// Keep a tail in the buffer in case the end marker is split
			// across deltas. The tail is cut on rune boundaries so emitted
			// fragments stay valid UTF-8.
			minBuf := len(thinkEndFlag) - 1
			if runes := []rune(t.buffer); len(runes) > minBuf {
				emit := string(runes[:len(runes)-minBuf])
				if !t.inBlock {
					out = append(out, thinkingBlockMarker)
					t.inBlock = true
				}
				out = append(out, emit)
				t.buffer = string(runes[len(runes)-minBuf:])
			}
			return out
		}

		thinking := t.buffer[:idx]
		rest := t.buffer[idx+len(thinkEndFlag):]
		if !t.inBlock {
			out = append(out, thinkingBlockMarker)
			t.inBlock = true
		}
		if thinking != "" {
			out = append(out, thinking)
		}
		out = append(out, thinkingEndMarker)
		t.inBlock = false
		t.thinkingEnded = true
		t.buffer = ""
		if rest != "" {
			out = append(out, rest)
		}
		return out
	}

	if content != "" {
		if t.inBlock {
			out = append(out, thinkingEndMarker)
			t.inBlock = false
		}
		out = append(out, content)
	}
	return out
}

// flush drains buffered text once the stream ends.
func (t *thinkingStream) flush() []string {
	var out []string
	if t.buffer != "" && !t.thinkingEnded {
		if !t.inBlock {
			out = append(out, thinkingBlockMarker)
			t.inBlock = true
		}
		out = append(out, t.buffer)
		t.buffer = ""
	}
	if t.inBlock {
		out = append(out, thinkingEndMarker)
		t.inBlock = false
	}
	return out
}
