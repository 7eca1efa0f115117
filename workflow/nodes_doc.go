package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/parse"
	"github.com/zhisuan/graphchat/retrieval"
)

// fileExtraction pulls text out of the uploaded files and stores it under
// file_content / extracted_texts. Extraction failure is absorbed into an
// error event so the graph can continue to its error branch.
func (e *Engine) fileExtraction(ctx context.Context, st graph.State, em *graph.Emitter) error {
	filePaths := dedupe(st.GetStrings(KeyFilePaths))
	if len(filePaths) == 0 {
		st[KeyFileContent] = ""
		return nil
	}

	if err := em.NodeStartedWith(ctx, "file_processing",
		fmt.Sprintf("开始提取 %d 个上传文件的内容...", len(filePaths)),
		map[string]any{"file": filePaths}); err != nil {
		return err
	}

	content, err := e.deps.Extractor.Extract(ctx, filePaths, forceOCRFromState(st), st.GetString(KeyKBToken))
	if err != nil {
		msg := fmt.Sprintf("文件提取失败: %v", err)
		e.deps.Logger.Error("%s", msg)
		st[KeyFileContent] = ""
		st[KeyExtractedTexts] = ""
		st[KeyErrorMsg] = msg
		return em.Error(ctx, msg)
	}

	st[KeyFileContent] = content
	st[KeyExtractedTexts] = content
	return em.NodeFinished(ctx, "file_processing", "文件内容提取完成")
}

// queryEnhancement rewrites the user query for retrieval when conversation
// history exists; without history it leaves enhanced_query empty.
func (e *Engine) queryEnhancement(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "query_enhancement", "正在优化查询..."); err != nil {
		return err
	}

	enhanced := ""
	if history := historyFromState(st); len(history) > 0 {
		prompt := fmt.Sprintf(retrievalEnhancementPrompt,
			nowDate(), st.GetString(KeySysQuery), historyAsText(history))
		enhanced = e.deps.Generator.GenerateBlocking(ctx, llm.Request{
			Query:        st.GetString(KeySysQuery),
			SystemPrompt: prompt,
			Temperature:  0.1,
			ModelName:    st.GetString(KeyModelName),
		})
	}
	st[KeyEnhancedQuery] = enhanced
	return em.NodeFinished(ctx, "query_enhancement", fmt.Sprintf("查询已优化为: %s", enhanced))
}

// kbQueryOpts renames the knowledge-base query node per workflow; the OA
// workflow reuses the same traversal under different labels.
type kbQueryOpts struct {
	node      string
	startMsg  func(fileName string) string
	finishMsg string
}

// singleFileKBQuery retrieves and assembles context from one file (or tag)
// in the configured knowledge bases.
func (e *Engine) singleFileKBQuery(ctx context.Context, st graph.State, em *graph.Emitter) error {
	return e.runKBQuery(ctx, st, em, kbQueryOpts{
		node:      "single_file_processing",
		startMsg:  func(fileName string) string { return fmt.Sprintf("正在处理文件: %s", fileName) },
		finishMsg: "文件处理完成",
	})
}

func (e *Engine) runKBQuery(ctx context.Context, st graph.State, em *graph.Emitter, opts kbQueryOpts) error {
	cfg := e.cfg()
	kbNames := st.GetStrings(KeyKBNames)
	fileNames := st.GetStrings(KeyFileNames)
	fileName := ""
	if len(fileNames) > 0 {
		fileName = fileNames[0]
	}
	tag := ""
	if tags := st.GetStrings(KeyTags); len(tags) > 0 {
		tag = tags[0]
	}
	sysQuery := st.GetString(KeySysQuery)
	enhancedQuery := st.GetString(KeyEnhancedQuery)

	customFilters := map[string]any{}
	if len(fileNames) > 0 {
		customFilters["file_name"] = fileNames
	}
	if tag != "" {
		customFilters["tags"] = tag
	}

	if err := em.NodeStarted(ctx, opts.node, opts.startMsg(fileName)); err != nil {
		return err
	}

	chunks, err := e.deps.Retriever.Query(ctx, retrieval.Request{
		KBNames:       kbNames,
		FileNames:     []string{fileName},
		CustomFilters: customFilters,
		Querys:        multiQuerys(sysQuery, enhancedQuery),
		TopK:          intOr(st, KeyTopK, 30),
		TopN:          intOr(st, KeyTopN, 3),
		KeyWeight:     floatOr(st, KeyKeyWeight, 0.8),
		Token:         st.GetString(KeyKBToken),
	})
	if err != nil {
		msg := fmt.Sprintf("查询知识库时出错: %v", err)
		e.deps.Logger.Error("%s", msg)
		st[KeyLastError] = msg
		st[KeyLastErrorType] = "知识库查询节点"
		return em.Error(ctx, msg)
	}

	results := retrieval.ExpandResults(chunks)
	content, metadata := retrieval.AnalyzeResult(results, cfg.MaxDocContentLength, cfg.MaxInputTokens, e.deps.Tokens)

	st[KeyKBContent] = content
	if strings.TrimSpace(content) == "" {
		st[KeyLastError] = "当前检索的向量库未返回任何内容，请尝试重新导入文件或联系管理员检后台"
	}
	st[KeyRetrievedDocsMeta] = metadata

	if err := em.OriginDocumentsRetrieved(ctx, results); err != nil {
		return err
	}
	return em.NodeFinished(ctx, opts.node, opts.finishMsg)
}

// multiFileKBQuery retrieves and summarizes each file (or tag) in turn,
// then aggregates the summaries into contrastive_content. Per-item
// failures are collected and reported without aborting the loop.
func (e *Engine) multiFileKBQuery(ctx context.Context, st graph.State, em *graph.Emitter) error {
	return e.runMultiKBQuery(ctx, st, em, false)
}

func (e *Engine) runMultiKBQuery(ctx context.Context, st graph.State, em *graph.Emitter, parallel bool) error {
	fileNames := st.GetStrings(KeyFileNames)
	tags := st.GetStrings(KeyTags)

	items, itemType, itemLabel := fileNames, "file_name", "文件"
	if len(fileNames) == 0 {
		items, itemType, itemLabel = tags, "tags", "标签"
	}

	if err := em.NodeStarted(ctx, "multi_file_processing",
		fmt.Sprintf("开始处理 %v...", items)); err != nil {
		return err
	}

	if len(items) == 0 {
		st[KeyErrorMsg] = "没有指定文件或标签，当前输入的文件名和标签为空，处理结束。检查是否错误的调用的多文件/标签方法"
		return em.NodeFinished(ctx, "multi_file_processing", "没有指定文件或标签，处理结束。")
	}

	var outcomes []itemOutcome
	var err error
	if parallel {
		outcomes, err = e.queryItemsParallel(ctx, st, em, items, itemType, itemLabel)
	} else {
		outcomes, err = e.queryItemsSequential(ctx, st, em, items, itemType, itemLabel)
	}
	if err != nil {
		return err
	}

	fileSummaries := map[string]string{}
	combined := ""
	var allDocs []retrieval.Result
	var aggregatedMeta []retrieval.DocMeta
	var errors []string
	for _, oc := range outcomes {
		if oc.err != "" {
			errors = append(errors, oc.err)
			continue
		}
		fileSummaries[oc.item] = oc.summary
		combined += fmt.Sprintf("\n\n%s '%s' 内容总结:\n%s", itemLabel, oc.item, oc.summary)
		allDocs = append(allDocs, oc.docs...)
		aggregatedMeta = append(aggregatedMeta, oc.metadata...)
	}

	if err := em.OriginDocumentsRetrieved(ctx, allDocs); err != nil {
		return err
	}

	e.deps.Logger.Info("all file/tag summaries generated: items=%d errors=%d", len(items), len(errors))
	st[KeyContrastiveContent] = strings.NewReplacer("<origin>", "", "</origin>", "").Replace(combined)
	st[KeyFileSummaries] = fileSummaries
	st[KeyAllFileDocs] = allDocs
	st[KeyRetrievedDocsMeta] = aggregatedMeta
	st[KeyErrorMsg] = strings.Join(errors, "\n")

	return em.NodeFinished(ctx, "multi_file_processing", "所有项目处理完成")
}

// itemOutcome is the per-file (or per-tag) result of the multi-item query.
type itemOutcome struct {
	item     string
	summary  string
	docs     []retrieval.Result
	metadata []retrieval.DocMeta
	err      string
}

func (e *Engine) queryItemsSequential(ctx context.Context, st graph.State, em *graph.Emitter, items []string, itemType, itemLabel string) ([]itemOutcome, error) {
	outcomes := make([]itemOutcome, 0, len(items))
	for i, item := range items {
		oc, err := e.processOneItem(ctx, st, em, item, i, len(items), itemType, itemLabel)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, oc)
	}
	return outcomes, nil
}

// processOneItem retrieves one item's context and streams its summary.
func (e *Engine) processOneItem(ctx context.Context, st graph.State, em *graph.Emitter, item string, i, total int, itemType, itemLabel string) (itemOutcome, error) {
	cfg := e.cfg()
	progress := float64(i) / float64(total) * 100
	sysQuery := st.GetString(KeySysQuery)

	if err := em.NodeStartedWith(ctx, "item_processing",
		fmt.Sprintf("[%d/%d] 正在查询%s '%s'...\n", i+1, total, itemLabel, item),
		map[string]any{itemType: item, "progress": progress, "index": i + 1, "total": total}); err != nil {
		return itemOutcome{}, err
	}

	var queryFiles []string
	if itemType == "file_name" {
		queryFiles = []string{item}
	}
	chunks, err := e.deps.Retriever.Query(ctx, retrieval.Request{
		KBNames:       st.GetStrings(KeyKBNames),
		FileNames:     queryFiles,
		CustomFilters: map[string]any{itemType: item},
		Querys:        multiQuerys(sysQuery, st.GetString(KeyEnhancedQuery)),
		TopK:          intOr(st, KeyTopK, 35),
		TopN:          intOr(st, KeyTopN, 3),
		KeyWeight:     floatOr(st, KeyKeyWeight, 0.8),
		Token:         st.GetString(KeyKBToken),
	})
	if err != nil {
		msg := fmt.Sprintf("查询知识库内的指定%s %s 时出错: %v", itemLabel, item, err)
		e.deps.Logger.Error("%s", msg)
		if emitErr := em.ErrorWith(ctx, msg, map[string]any{itemType: item}); emitErr != nil {
			return itemOutcome{}, emitErr
		}
		return itemOutcome{item: item, err: msg}, nil
	}

	results := retrieval.ExpandResults(chunks)
	content, metadata := retrieval.AnalyzeResult(results, cfg.MaxDocContentLength, cfg.MaxInputTokens, e.deps.Tokens)

	if err := em.NodeStartedWith(ctx, "summary_generation",
		fmt.Sprintf("[%d/%d] 正在为%s '%s'生成总结...\n", i+1, total, itemLabel, item),
		map[string]any{itemType: item, "progress": progress + 30}); err != nil {
		return itemOutcome{}, err
	}

	if err := em.MessageFile(ctx, fmt.Sprintf("\n```正在对 %s 归纳...\n", item), item); err != nil {
		return itemOutcome{}, err
	}
	summary := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        sysQuery,
		SystemPrompt: fmt.Sprintf(documentSummaryPrompt, sysQuery, content),
		Temperature:  0.1,
		ModelName:    st.GetString(KeyModelName),
	}) {
		summary += token
		if err := em.MessageFile(ctx, token, item); err != nil {
			return itemOutcome{}, err
		}
	}
	if err := em.MessageFile(ctx, "\n```\n", item); err != nil {
		return itemOutcome{}, err
	}

	combinedSoFar := fmt.Sprintf("\n\n%s '%s' 内容总结:\n%s", itemLabel, item, summary)
	if err := em.NodeFinishedWith(ctx, "summary_generation",
		fmt.Sprintf("[%d/%d] %s '%s' 总结生成完成", i+1, total, itemLabel, item),
		map[string]any{itemType: item, "completed": combinedSoFar}); err != nil {
		return itemOutcome{}, err
	}

	return itemOutcome{item: item, summary: summary, docs: results, metadata: metadata}, nil
}

// knowledgeFinalAnswer streams the grounded final answer built from every
// context source accumulated so far.
func (e *Engine) knowledgeFinalAnswer(ctx context.Context, st graph.State, em *graph.Emitter) error {
	systemPrompt := finalAnswerPrompt(
		e.systemPromptOrDefault(st),
		st.GetString(KeyFileContent),
		st.GetString(KeyKBContent),
		st.GetString(KeyContrastiveContent),
		st.GetString(KeyInputBody),
	)

	if err := em.NodeStarted(ctx, "final_answer", "正在生成最终回答...\n"); err != nil {
		return err
	}

	finalAnswer := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        st.GetString(KeySysQuery),
		SystemPrompt: systemPrompt,
		Temperature:  temperatureFromState(st),
		ModelName:    st.GetString(KeyModelName),
		History:      historyFromState(st),
	}) {
		finalAnswer += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyFinalAnswer] = finalAnswer

	return em.NodeFinishedCompleted(ctx, "final_answer", "最终回答生成完成", finalAnswer)
}

// generalFinalAnswer streams an answer with the raw system prompt, for
// requests that carry no retrieval context at all.
func (e *Engine) generalFinalAnswer(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "final_answer", "正在生成最终回答...\n"); err != nil {
		return err
	}

	finalAnswer := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        st.GetString(KeySysQuery),
		SystemPrompt: st.GetString(KeySystemPrompt),
		Temperature:  temperatureFromState(st),
		ModelName:    st.GetString(KeyModelName),
		History:      historyFromState(st),
	}) {
		finalAnswer += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyFinalAnswer] = finalAnswer

	return em.NodeFinishedCompleted(ctx, "final_answer", "最终回答生成完成", finalAnswer)
}

// handleError explains the accumulated error to the user through the
// model, so the failure message is still conversational.
func (e *Engine) handleError(ctx context.Context, st graph.State, em *graph.Emitter) error {
	errorMsg := st.GetString(KeyErrorMsg) + st.GetString(KeyLastError)
	if errorMsg == "" {
		errorMsg = "未知错误"
	}

	if err := em.NodeStarted(ctx, "final_answer", "调用错误"); err != nil {
		return err
	}

	finalAnswer := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:       fmt.Sprintf(errorExplanationPrompt, errorMsg),
		Temperature: 0.1,
		ModelName:   st.GetString(KeyModelName),
	}) {
		finalAnswer += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyFinalAnswer] = finalAnswer

	return em.NodeFinishedCompleted(ctx, "final_answer", "最终回答生成完成", finalAnswer)
}

// answerJSONConversion reshapes the generated final answer into the JSON
// template the caller supplied under output_body. Skipped when either side
// is missing.
func (e *Engine) answerJSONConversion(ctx context.Context, st graph.State, em *graph.Emitter) error {
	return e.convertToJSON(ctx, st, em, st.GetString(KeyFinalAnswer))
}

// jsonConversion converts the raw query text instead of a generated
// answer; used by the standalone conversion workflow.
func (e *Engine) jsonConversion(ctx context.Context, st graph.State, em *graph.Emitter) error {
	return e.convertToJSON(ctx, st, em, st.GetString(KeySysQuery))
}

func (e *Engine) convertToJSON(ctx context.Context, st graph.State, em *graph.Emitter, content string) error {
	outputBody := st.GetString(KeyOutputBody)
	if outputBody == "" || outputBody == "{}" || content == "" {
		return nil
	}

	if err := em.NodeStarted(ctx, "convert_to_json", "正在将结果转换为json...\n"); err != nil {
		return err
	}

	jsonResult := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        fmt.Sprintf("请将以下内容转换为该JSON格式。\n## 示例模板\n%s\n## 待转换内容\n%s", outputBody, content),
		SystemPrompt: convertToJSONPrompt,
		Temperature:  0.1,
		ModelName:    st.GetString(KeyModelName),
	}) {
		jsonResult += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyJSONResult] = jsonResult

	return em.NodeFinishedCompleted(ctx, "convert_to_json", "转换json完成", jsonResult)
}

// retrievedConversion asks the model which retrieved passages actually
// back the generated answer and republishes just those to the client.
func (e *Engine) retrievedConversion(ctx context.Context, st graph.State, em *graph.Emitter) error {
	metadata := docMetaFromState(st)
	if len(metadata) == 0 {
		e.deps.Logger.Warn("retrieved docs metadata is unexpectedly empty")
		if err := em.NodeFinishedCompleted(ctx, "convert_to_retrieved", "智能筛选答案来源未完成", "来源异常为空"); err != nil {
			return err
		}
		return em.DocumentsRetrieved(ctx, []retrieval.DocMeta{})
	}

	metadataJSON, _ := json.Marshal(metadata)

	if err := em.NodeStarted(ctx, "convert_to_retrieved", "正在智能筛选答案来源...\n"); err != nil {
		return err
	}

	llmResult := e.deps.Generator.GenerateBlocking(ctx, llm.Request{
		Query: fmt.Sprintf(relevantMetadataPrompt,
			st.GetString(KeySysQuery), st.GetString(KeyFinalAnswer), metadataJSON),
		Temperature: 0.1,
		ModelName:   st.GetString(KeyModelName),
	})

	ids, _ := parse.ExtractIDs(llmResult)
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	var filtered []retrieval.DocMeta
	for _, doc := range metadata {
		if _, ok := idSet[doc.ID]; ok {
			filtered = append(filtered, doc)
		}
	}

	if err := em.NodeFinishedCompleted(ctx, "convert_to_retrieved", "智能筛选答案来源完成", llmResult); err != nil {
		return err
	}
	if len(filtered) > 0 {
		return em.DocumentsRetrieved(ctx, filtered)
	}
	return nil
}

// docMetaFromState tolerates both typed metadata and JSON-decoded shapes.
func docMetaFromState(st graph.State) []retrieval.DocMeta {
	switch v := st[KeyRetrievedDocsMeta].(type) {
	case []retrieval.DocMeta:
		return v
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []retrieval.DocMeta
		if json.Unmarshal(raw, &out) != nil {
			return nil
		}
		return out
	}
	return nil
}

func multiQuerys(sysQuery, enhancedQuery string) []string {
	querys := []string{sysQuery}
	if strings.TrimSpace(enhancedQuery) != "" {
		querys = nil
		for _, q := range []string{sysQuery, enhancedQuery} {
			if strings.TrimSpace(q) != "" {
				querys = append(querys, q)
			}
		}
	}
	return querys
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func nowDate() string {
	return timeNow().Format("2006-01-02")
}
