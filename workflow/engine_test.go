package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/retrieval"
)

type fakeGenerator struct {
	stream   func(req llm.Request) []string
	blocking func(req llm.Request) string
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, req llm.Request) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		if f.stream == nil {
			return
		}
		for _, token := range f.stream(req) {
			select {
			case ch <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (f *fakeGenerator) GenerateBlocking(_ context.Context, req llm.Request) string {
	if f.blocking == nil {
		return ""
	}
	return f.blocking(req)
}

type retrieverFunc func(ctx context.Context, req retrieval.Request) ([]retrieval.Chunk, error)

func (f retrieverFunc) Query(ctx context.Context, req retrieval.Request) ([]retrieval.Chunk, error) {
	return f(ctx, req)
}

type extractorFunc func(ctx context.Context, filePaths []string, forceOCR *bool, kbToken string) (string, error)

func (f extractorFunc) Extract(ctx context.Context, filePaths []string, forceOCR *bool, kbToken string) (string, error) {
	return f(ctx, filePaths, forceOCR, kbToken)
}

type weatherFunc func(ctx context.Context, location string) map[string]any

func (f weatherFunc) Get(ctx context.Context, location string) map[string]any {
	return f(ctx, location)
}

type expenseFunc func(ctx context.Context, detailCode string, forceOCR bool) (map[string]any, error)

func (f expenseFunc) Fetch(ctx context.Context, detailCode string, forceOCR bool) (map[string]any, error) {
	return f(ctx, detailCode, forceOCR)
}

func newTestEngine(deps Deps) *Engine {
	if deps.Config == nil {
		deps.Config = config.NewHolder(config.Default())
	}
	return NewEngine(deps)
}

// runWorkflow selects and drains a workflow for the given request state.
func runWorkflow(t *testing.T, e *Engine, initial graph.State) ([]graph.Event, graph.State) {
	t.Helper()
	p, err := e.Select(initial)
	require.NoError(t, err)

	var events []graph.Event
	for ev := range p.Process(context.Background()) {
		events = append(events, ev)
	}
	return events, p.State()
}

func eventsOfKind(events []graph.Event, kind graph.Kind) []graph.Event {
	var out []graph.Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestGeneralWorkflowStreamsAnswer(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			return []string{"你好，", "世界"}
		}},
	})

	events, st := runWorkflow(t, e, graph.State{
		KeySysQuery: "随便聊聊",
	})

	assert.Equal(t, "你好，世界", st.GetString(KeyFinalAnswer))

	messages := eventsOfKind(events, graph.KindMessage)
	require.Len(t, messages, 2)
	assert.Equal(t, "你好，", messages[0].Answer())

	finished := eventsOfKind(events, graph.KindNodeFinished)
	require.NotEmpty(t, finished)
	assert.Equal(t, "你好，世界", finished[len(finished)-1].Data["completed"])

	completes := eventsOfKind(events, graph.KindComplete)
	require.Len(t, completes, 1)
	assert.Equal(t, "数据处理完成", completes[0].Message())
}

func TestOAEmptyInvoiceShortCircuit(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	oaData := map[string]any{"code": 0, "data": []any{}, "msg": "success"}
	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType: TaskOAInvoiceRaw,
		KeyOAData:   oaData,
	})

	require.True(t, st.Has(KeyEmptyInvoiceData))
	assert.Empty(t, st.GetString(KeyErrorMsg))

	var custom *graph.Event
	for i := range events {
		if events[i].Kind == graph.Kind("empty_invoice_data") {
			custom = &events[i]
		}
	}
	require.NotNil(t, custom, "expected the structured-data short circuit event")
	payload, ok := custom.Data["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "", payload["tp_ocrs"])
	assert.Contains(t, payload, "minio_file_list")

	completes := eventsOfKind(events, graph.KindComplete)
	require.Len(t, completes, 2)
	assert.Equal(t, "未提取到有效的OCR内容，已直接返回结构化数据", completes[0].Message())
}

func TestUAVWeatherFallback(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			return []string{"北京市"}
		}},
		Weather: weatherFunc(func(_ context.Context, location string) map[string]any {
			return nil
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType: TaskUAVWeather,
		KeySysQuery: "帮我看看北京适不适合飞无人机",
	})

	assert.Equal(t, "北京市", st.GetString(KeyStandardizedAddress))
	assert.Equal(t, "未能查询到 '北京市' 的天气信息，请更换地点或稍后重试。", st.GetString(KeyFinalAnswer))

	finals := eventsOfKind(events, graph.KindFinalMessage)
	require.Len(t, finals, 1)
	assert.Equal(t, st.GetString(KeyFinalAnswer), finals[0].Data["content"])
}

func TestUAVWeatherAnalysisPath(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			if strings.Contains(req.SystemPrompt, "地址标准化") {
				return []string{"广州市天河区"}
			}
			return []string{"适合飞行"}
		}},
		Weather: weatherFunc(func(_ context.Context, location string) map[string]any {
			return map[string]any{"temperature": "28℃", "wind_power": "3级"}
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType: TaskUAVWeather,
		KeySysQuery: "广州天河可以飞吗",
	})

	assert.Equal(t, "适合飞行", st.GetString(KeyFinalAnswer))

	finished := eventsOfKind(events, graph.KindNodeFinished)
	var analysis *graph.Event
	for i := range finished {
		if finished[i].Node() == "flight_analysis" {
			analysis = &finished[i]
		}
	}
	require.NotNil(t, analysis)
	assert.Equal(t, "适合飞行", analysis.Data["result"])
}

func TestMultiFilePartialFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			if strings.Contains(req.SystemPrompt, "文档分析专家") {
				return []string{"要点总结<origin>来源于[a.pdf]第[1]页的开头</origin>"}
			}
			return []string{"最终答案"}
		}},
		Retriever: retrieverFunc(func(_ context.Context, req retrieval.Request) ([]retrieval.Chunk, error) {
			if item, _ := req.CustomFilters["file_name"].(string); item == "b.pdf" {
				return nil, errors.New("backend unavailable")
			}
			return []retrieval.Chunk{{
				Content:       "A文档内容",
				OriginContent: []string{"原文片段"},
				PageNumbers:   []int{1},
				FileName:      "a.pdf",
				KBName:        "kb1",
				Score:         0.9,
			}}, nil
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeySysQuery:  "对比两份文档",
		KeyKBNames:   []string{"kb1"},
		KeyFileNames: []string{"a.pdf", "b.pdf"},
	})

	// The failed item is reported but does not abort the others.
	assert.Contains(t, st.GetString(KeyErrorMsg), "查询知识库内的指定文件 b.pdf 时出错")
	assert.Contains(t, st.GetString(KeyContrastiveContent), "文件 'a.pdf' 内容总结")
	assert.NotContains(t, st.GetString(KeyContrastiveContent), "<origin>")

	errs := eventsOfKind(events, graph.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, "b.pdf", errs[0].Data["file_name"])

	// Summary tokens carry the item attribution.
	var attributed bool
	for _, ev := range eventsOfKind(events, graph.KindMessage) {
		if ev.Data["file"] == "a.pdf" {
			attributed = true
		}
	}
	assert.True(t, attributed)

	// An answer was still generated; attribution is skipped because of the
	// recorded per-item error.
	assert.Equal(t, "最终答案", st.GetString(KeyFinalAnswer))
	assert.Empty(t, eventsOfKind(events, graph.KindDocumentsRetrieved))
}

func TestSummaryExtractPaperPath(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{blocking: func(req llm.Request) string {
			switch {
			case strings.Contains(req.Query, "text classifier"):
				return `{"classification": "论文类型"}`
			case strings.Contains(req.Query, "extracting the abstract"):
				return `{"summary": "论文摘要内容", "keywords": ["检索", "图结构"]}`
			}
			return ""
		}},
		Extractor: extractorFunc(func(_ context.Context, paths []string, _ *bool, _ string) (string, error) {
			return "FILE: paper.pdf\nAbstract: ...", nil
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType:  TaskSummaryExtract,
		KeySysQuery:  "提取摘要",
		KeyFilePaths: []string{"/tmp/paper.pdf"},
	})

	assert.Equal(t, "论文类型", st.GetString(KeyClassification))
	assert.Equal(t, "论文摘要内容", st.GetString(KeySummary))

	finals := eventsOfKind(events, graph.KindFinalMessage)
	require.Len(t, finals, 1)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(finals[0].Data["content"].(string)), &result))
	assert.Equal(t, "论文类型", result["type"])
	assert.Equal(t, []any{"检索", "图结构"}, result["keywords"])
}

func TestSummaryExtractInvalidDocumentRoutesToError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			return []string{"抱歉，文档内容为空。"}
		}},
		Extractor: extractorFunc(func(_ context.Context, paths []string, _ *bool, _ string) (string, error) {
			return "   ", nil
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType:  TaskSummaryExtract,
		KeySysQuery:  "提取摘要",
		KeyFilePaths: []string{"/tmp/empty.pdf"},
	})

	assert.True(t, st.GetBool(KeyPreprocessingFailed))
	assert.Equal(t, "抱歉，文档内容为空。", st.GetString(KeyFinalAnswer))

	errs := eventsOfKind(events, graph.KindError)
	require.NotEmpty(t, errs)
	assert.Equal(t, "文档内容无效或为空", errs[0].Message())
}

func TestRetrievedConversionFiltersByModelIDs(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{blocking: func(req llm.Request) string {
			return `{"ids": ["1"]}`
		}},
	})

	st := graph.State{
		KeySysQuery:    "问题",
		KeyFinalAnswer: "答案",
		KeyRetrievedDocsMeta: []retrieval.DocMeta{
			{ID: "0", FileName: "a.pdf"},
			{ID: "1", FileName: "b.pdf"},
		},
	}
	em := graph.NewEmitter("", 64)
	require.NoError(t, e.retrievedConversion(context.Background(), st, em))
	em.Close()

	var events []graph.Event
	for ev := range em.Events() {
		events = append(events, ev)
	}

	docs := eventsOfKind(events, graph.KindDocumentsRetrieved)
	require.Len(t, docs, 1)
	filtered, ok := docs[0].Data["documents"].([]retrieval.DocMeta)
	require.True(t, ok)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b.pdf", filtered[0].FileName)
}

func TestSingleFileQueryEmptyContentRoutesToError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			return []string{"抱歉，检索为空。"}
		}},
		Retriever: retrieverFunc(func(_ context.Context, req retrieval.Request) ([]retrieval.Chunk, error) {
			return nil, nil
		}),
	})

	_, st := runWorkflow(t, e, graph.State{
		KeySysQuery:  "问点什么",
		KeyKBNames:   []string{"kb1"},
		KeyFileNames: []string{"a.pdf"},
	})

	assert.Equal(t, "当前检索的向量库未返回任何内容，请尝试重新导入文件或联系管理员检后台", st.GetString(KeyLastError))
	// handle_error produced the conversational failure answer.
	assert.Equal(t, "抱歉，检索为空。", st.GetString(KeyFinalAnswer))
}

func TestParallelMultiFileQueryAggregatesAllItems(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			if strings.Contains(req.SystemPrompt, "文档分析专家") {
				return []string{"总结"}
			}
			return []string{"最终答案"}
		}},
		Retriever: retrieverFunc(func(_ context.Context, req retrieval.Request) ([]retrieval.Chunk, error) {
			item, _ := req.CustomFilters["file_name"].(string)
			return []retrieval.Chunk{{
				Content:       item + " 内容",
				OriginContent: []string{"片段"},
				PageNumbers:   []int{1},
				FileName:      item,
				Score:         0.5,
			}}, nil
		}),
	})

	items := []string{"a.pdf", "b.pdf", "c.pdf"}
	_, st := runWorkflow(t, e, graph.State{
		KeySysQuery:     "汇总三份文档",
		KeyKBNames:      []string{"kb1"},
		KeyFileNames:    items,
		KeyParallelMode: true,
	})

	assert.Empty(t, st.GetString(KeyErrorMsg))
	for _, item := range items {
		assert.Contains(t, st.GetString(KeyContrastiveContent), fmt.Sprintf("文件 '%s' 内容总结", item))
	}
	summaries, ok := st[KeyFileSummaries].(map[string]string)
	require.True(t, ok)
	assert.Len(t, summaries, 3)
}

func TestCollectPrefersFinalMessage(t *testing.T) {
	t.Parallel()

	ch := make(chan graph.Event, 4)
	ch <- graph.Event{Kind: graph.KindMessage, Data: map[string]any{"answer": "流式"}}
	ch <- graph.Event{Kind: graph.KindMessage, Data: map[string]any{"answer": "内容"}}
	ch <- graph.Event{Kind: graph.KindFinalMessage, Data: map[string]any{"content": "最终结果"}}
	ch <- graph.Event{Kind: graph.KindError, Data: map[string]any{"message": "小问题"}}
	close(ch)

	answer, errs := Collect(ch)
	assert.Equal(t, "最终结果", answer)
	assert.Equal(t, []string{"小问题"}, errs)
}

func TestCollectFallsBackToTokens(t *testing.T) {
	t.Parallel()

	ch := make(chan graph.Event, 2)
	ch <- graph.Event{Kind: graph.KindMessage, Data: map[string]any{"answer": "逐个"}}
	ch <- graph.Event{Kind: graph.KindMessage, Data: map[string]any{"answer": "令牌"}}
	close(ch)

	answer, errs := Collect(ch)
	assert.Equal(t, "逐个令牌", answer)
	assert.Empty(t, errs)
}
