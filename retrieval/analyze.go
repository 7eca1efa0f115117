package retrieval

import (
	"fmt"
	"strings"
)

// AnalyzeResult turns expanded passages into a prompt context block plus
// the per-passage metadata list. The block is grown in 3000-character steps
// from an initial cap until it would exceed maxTokens, so a generous
// character cap never blows the model's input window. When the passages
// name their source files the block is prefixed with a 《file names》 title
// line.
func AnalyzeResult(results []Result, maxContentLength, maxTokens int, countTokens TokenCounter) (string, []DocMeta) {
	if countTokens == nil {
		countTokens = CountTokens
	}

	metadata := make([]DocMeta, 0, len(results))
	var fileNames []string
	seenFiles := make(map[string]struct{})
	var body strings.Builder

	for idx, doc := range results {
		metadata = append(metadata, DocMeta{
			ID:         fmt.Sprintf("%d", idx),
			Content:    doc.SearchContent,
			Score:      doc.Score,
			Source:     doc.Source,
			FileName:   doc.FileName,
			PageNumber: doc.PageNumber,
			KBName:     doc.KBName,
		})
		if doc.FileName != "" {
			if _, seen := seenFiles[doc.FileName]; !seen {
				seenFiles[doc.FileName] = struct{}{}
				fileNames = append(fileNames, doc.FileName)
			}
		}
		body.WriteString("\n")
		body.WriteString(doc.OriginContent)
		body.WriteString("\n")
	}

	content := truncateToBudget(body.String(), maxContentLength, maxTokens, countTokens)

	if len(fileNames) > 0 {
		content = "《" + strings.Join(fileNames, ",") + "》\n" + content
	}
	return content, metadata
}

// truncateToBudget cuts text at maxChars runes, then grows the cut in
// 3000-rune steps while the result stays under maxTokens.
func truncateToBudget(text string, maxChars, maxTokens int, countTokens TokenCounter) string {
	runes := []rune(text)
	currentLen := maxChars
	if currentLen > len(runes) {
		currentLen = len(runes)
	}
	truncated := string(runes[:currentLen])

	for countTokens(truncated) < maxTokens && currentLen < len(runes) {
		nextLen := currentLen + 3000
		if nextLen >= len(runes) {
			truncated = text
			break
		}
		next := string(runes[:nextLen])
		if countTokens(next) >= maxTokens {
			break
		}
		truncated = next
		currentLen = nextLen
	}
	return truncated
}
