package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/parse"
)

// Service-specific fallback answers, returned verbatim when the model call
// behind a summary node fails.
const (
	classificationFallback    = "抱歉，文档分类服务暂时出现问题，请稍后重试。"
	summaryExtractionFallback = "抱歉，论文摘要提取服务暂时出现问题，请稍后重试。"
	summaryGenerationFallback = "抱歉，通用摘要生成服务暂时出现问题，请稍后重试。"
)

// maxSummaryInputRunes caps the document text fed into classification and
// summarization prompts.
const maxSummaryInputRunes = 30000

// documentPreprocessing runs extraction, validation and length limiting as
// one step. Any failure marks preprocessing_failed so the router can divert
// to the error branch instead of classifying garbage.
func (e *Engine) documentPreprocessing(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := e.fileExtraction(ctx, st, em); err != nil {
		return err
	}
	if st.GetString(KeyErrorMsg) != "" {
		st[KeyPreprocessingFailed] = true
		return nil
	}

	if err := e.documentValidation(ctx, st, em); err != nil {
		return err
	}
	if !st.GetBool(KeyIsValid) {
		st[KeyPreprocessingFailed] = true
		return nil
	}

	return e.textLimit(ctx, st, em)
}

// documentValidation rejects empty or whitespace-only extractions.
func (e *Engine) documentValidation(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "document_validator", "正在验证文档内容..."); err != nil {
		return err
	}

	if strings.TrimSpace(st.GetString(KeyExtractedTexts)) == "" {
		st[KeyIsValid] = false
		st[KeyErrorMsg] = "文档内容无效或为空"
		return em.Error(ctx, "文档内容无效或为空")
	}

	st[KeyIsValid] = true
	return em.NodeFinished(ctx, "document_validator", "文档内容验证通过")
}

// textLimit truncates the extracted text to the prompt-safe length.
func (e *Engine) textLimit(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "text_limiter", "正在处理文本长度..."); err != nil {
		return err
	}

	text := st.GetString(KeyExtractedTexts)
	if strings.TrimSpace(text) == "" {
		st[KeyProcessedText] = ""
		return em.NodeFinished(ctx, "text_limiter", "文本为空，已设置空处理结果")
	}

	runes := []rune(text)
	if len(runes) > maxSummaryInputRunes {
		runes = runes[:maxSummaryInputRunes]
	}
	st[KeyProcessedText] = string(runes)
	return em.NodeFinished(ctx, "text_limiter",
		fmt.Sprintf("文本长度处理完成，处理后长度: %d 字符", len(runes)))
}

// documentClassifier decides whether the document is an academic paper.
func (e *Engine) documentClassifier(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "classifier", "正在分析文档类型..."); err != nil {
		return err
	}

	text := st.GetString(KeyProcessedText)
	if strings.TrimSpace(text) == "" {
		st[KeyClassification] = "其他类型"
		return em.NodeFinished(ctx, "classifier", "文档类型: 其他类型")
	}

	response := e.deps.Generator.GenerateBlocking(ctx, llm.Request{
		Query:       fmt.Sprintf(documentClassificationPrompt, text),
		Temperature: 0.1,
		ModelName:   st.GetString(KeyModelName),
		Fallback:    classificationFallback,
	})
	st[KeyClassificationRaw] = response

	classification := ""
	if obj, ok := parse.ExtractJSONBlock(response); ok {
		classification, _ = obj["classification"].(string)
	}
	if classification == "" {
		// Parse failure: fall back to a substring check on the raw text.
		if strings.Contains(response, "论文") {
			classification = "论文类型"
		} else {
			classification = "其他类型"
		}
	}
	st[KeyClassification] = classification

	return em.NodeFinished(ctx, "classifier", fmt.Sprintf("文档类型: %s", classification))
}

// summaryExtraction pulls the verbatim abstract and keywords out of a
// paper. A response that cannot be parsed leaves both fields empty rather
// than inventing content.
func (e *Engine) summaryExtraction(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "summary_extractor", "正在提取论文摘要和关键词..."); err != nil {
		return err
	}

	response := e.deps.Generator.GenerateBlocking(ctx, llm.Request{
		Query:       fmt.Sprintf(paperSummaryExtractionPrompt, st.GetString(KeyProcessedText)),
		Temperature: 0.1,
		ModelName:   st.GetString(KeyModelName),
		Fallback:    summaryExtractionFallback,
	})
	st[KeyExtractionRaw] = response

	summary := ""
	keywords := []string{}
	if obj, ok := parse.ExtractJSONBlock(response); ok {
		summary, _ = obj["summary"].(string)
		if raw, ok := obj["keywords"].([]any); ok {
			for _, kw := range raw {
				if s, ok := kw.(string); ok {
					keywords = append(keywords, s)
				}
			}
		}
	}
	st[KeySummary] = summary
	st[KeyKeywords] = keywords

	return em.NodeFinished(ctx, "summary_extractor", "摘要和关键词提取完成")
}

// summaryGenerator writes a fresh summary for non-paper documents. When the
// model ignores the JSON instruction the raw response is used as-is.
func (e *Engine) summaryGenerator(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "summary_generator", "正在生成摘要..."); err != nil {
		return err
	}

	response := e.deps.Generator.GenerateBlocking(ctx, llm.Request{
		Query:       fmt.Sprintf(generalSummaryGenerationPrompt, st.GetString(KeyProcessedText)),
		Temperature: 0.7,
		ModelName:   st.GetString(KeyModelName),
		Fallback:    summaryGenerationFallback,
	})
	st[KeyGenerationRaw] = response

	summary := response
	if obj, ok := parse.ExtractJSONBlock(response); ok {
		if s, _ := obj["summary"].(string); s != "" {
			summary = s
		}
	}
	st[KeySummary] = summary

	return em.NodeFinished(ctx, "summary_generator", "摘要生成完成")
}

// summaryFinalResponse publishes the structured summary result as the final
// message.
func (e *Engine) summaryFinalResponse(ctx context.Context, st graph.State, em *graph.Emitter) error {
	result := map[string]any{
		"type":    st.GetString(KeyClassification),
		"summary": st.GetString(KeySummary),
	}
	if st.GetString(KeyClassification) == "论文类型" {
		keywords := st.GetStrings(KeyKeywords)
		if keywords == nil {
			keywords = []string{}
		}
		result["keywords"] = keywords
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return em.Error(ctx, fmt.Sprintf("生成最终响应时出错: %v", err))
	}
	st[KeyFinalAnswer] = string(payload)
	return em.FinalMessage(ctx, string(payload))
}
