package llm

import (
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zhisuan/graphchat/config"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var thinkingBlockRe = regexp.MustCompile("```thinking\\s*[\\s\\S]*?```")

// RemoveThinkingBlocks strips fenced reasoning blocks and everything up to
// a trailing </think> marker from a model answer, so stored history never
// feeds reasoning text back into the next prompt.
func RemoveThinkingBlocks(text string) string {
	text = strings.TrimSpace(thinkingBlockRe.ReplaceAllString(text, ""))
	if idx := strings.Index(text, "</think>"); idx >= 0 {
		text = text[idx+len("</think>"):]
	}
	return strings.TrimSpace(text)
}

// Model families that reject a system role and need the system prompt
// inlined into the user turn.
var specialModelNames = []string{"qwq"}

func isSpecialModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	for _, name := range specialModelNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// buildMessages normalizes conversation history (strict user/assistant
// alternation, reasoning blocks scrubbed from assistant turns, empty turns
// dropped), appends the user query with the model's qwords suffix and
// places the system prompt either as a system message or inlined for
// special models.
func buildMessages(systemPrompt, userQuery string, history []Message, modelName string, mc config.ModelConfig) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	lastRole := "system"
	for _, msg := range history {
		content := msg.Content
		if msg.Role == openai.ChatMessageRoleAssistant {
			content = RemoveThinkingBlocks(content)
		}
		if (msg.Role == openai.ChatMessageRoleUser || msg.Role == openai.ChatMessageRoleAssistant) &&
			msg.Role != lastRole && strings.TrimSpace(content) != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: content})
			lastRole = msg.Role
		}
	}

	if strings.TrimSpace(userQuery) == "" {
		userQuery = "请根据提供的信息进行处理"
	}
	humanContent := strings.TrimSpace(userQuery + mc.Qwords)

	if isSpecialModel(modelName) {
		inlined := systemPrompt + "\n<user_inputs>\n" + humanContent + "\n</user_inputs>"
		if len(messages) == 1 && messages[0].Role == openai.ChatMessageRoleUser {
			// A lone user turn would collide with the inlined prompt; pad
			// with an empty assistant turn to keep alternation legal.
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ""})
		}
		return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: inlined})
	}

	if strings.TrimSpace(systemPrompt) != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		}, messages...)
	}
	if n := len(messages); n > 0 && messages[n-1].Role == openai.ChatMessageRoleUser {
		messages[n-1].Content += humanContent
		return messages
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: humanContent})
}
