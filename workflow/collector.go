package workflow

import (
	"strings"

	"github.com/zhisuan/graphchat/graph"
)

// Collect drains an event stream into one blocking answer for callers that
// do not want SSE. A final_message wins outright; otherwise the streamed
// message tokens are concatenated. Error events are gathered separately so
// the caller can distinguish a degraded answer from a clean one.
func Collect(events <-chan graph.Event) (answer string, errs []string) {
	var tokens strings.Builder
	finalMessage := ""
	for ev := range events {
		switch ev.Kind {
		case graph.KindMessage:
			tokens.WriteString(ev.Answer())
		case graph.KindFinalMessage:
			if content, ok := ev.Data["content"].(string); ok {
				finalMessage = content
			}
		case graph.KindError:
			errs = append(errs, ev.Message())
		}
	}
	if finalMessage != "" {
		return finalMessage, errs
	}
	return tokens.String(), errs
}
