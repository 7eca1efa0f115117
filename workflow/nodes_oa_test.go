package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/retrieval"
)

func drainNode(t *testing.T, fn graph.NodeFunc, st graph.State) []graph.Event {
	t.Helper()
	em := graph.NewEmitter("", 64)
	require.NoError(t, fn(context.Background(), st, em))
	em.Close()

	var events []graph.Event
	for ev := range em.Events() {
		events = append(events, ev)
	}
	return events
}

func TestExtractOAInvoiceData(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	st := graph.State{
		KeyOAData: map[string]any{
			"code": 0,
			"data": []any{
				map[string]any{
					"name":               "差旅报销单",
					"amount":             "580.00",
					"explain":            "出差高铁票",
					"minio_file_list":    `["invoices/20260815/ticket.pdf"]`,
					"ai_extract_content": `[{"ocr_result": {"raw_content": "高铁票 广州南-北京西 580元"}}]`,
				},
			},
		},
	}
	drainNode(t, e.extractOAInvoiceData, st)

	assert.Contains(t, st.GetString(KeyInfos), `"amount":"580.00"`)
	assert.Contains(t, st.GetString(KeyInfos), `"name":"差旅报销单"`)
	assert.NotContains(t, st.GetString(KeyInfos), "ai_extract_content")
	assert.Contains(t, st.GetString(KeyOCRResult), "差旅报销单 - \n高铁票 广州南-北京西 580元")
	assert.Equal(t, "invoices/20260815/ticket.pdf", st.GetString(KeyMinioFileList))
	assert.Equal(t, "出差高铁票\n", st.GetString(KeyExplains))
	assert.Equal(t, "高铁票 广州南-北京西 580元", st.GetString(KeyTpOCRs))
	assert.False(t, st.Has(KeyEmptyInvoiceData))
}

func TestExtractOAInvoiceDataEmptyRecords(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	st := graph.State{
		KeyOAData: map[string]any{"code": 0, "data": []any{}},
	}
	drainNode(t, e.extractOAInvoiceData, st)

	require.True(t, st.Has(KeyEmptyInvoiceData))
	payload, ok := st[KeyEmptyInvoiceData].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"infos":           "",
		"ocr_result":      "",
		"minio_file_list": "",
		"explains":        "",
		"tp_ocrs":         "",
	}, payload)
}

func TestExtractOAInvoiceDataParsesStringPayload(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	st := graph.State{
		KeyOAData: `{"data": [{"name": "单据", "amount": "10", "ai_extract_content": "[{\"ocr_result\": {\"raw_content\": \"出租车发票\"}}]"}]}`,
	}
	drainNode(t, e.extractOAInvoiceData, st)

	assert.Equal(t, "出租车发票", st.GetString(KeyTpOCRs))
}

func TestExtractOAInvoiceDataRejectsBadPayload(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	tests := []struct {
		name    string
		oaData  any
		wantErr string
	}{
		{
			name:    "malformed json string",
			oaData:  "{not json",
			wantErr: "oa_data参数不是合法的JSON字符串",
		},
		{
			name:    "non dict payload",
			oaData:  42,
			wantErr: "oa_data参数必须是字典或可转为字典的JSON字符串",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := graph.State{KeyOAData: tt.oaData}
			events := drainNode(t, e.extractOAInvoiceData, st)

			assert.Contains(t, st.GetString(KeyErrorMsg), tt.wantErr)
			errs := eventsOfKind(events, graph.KindError)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Message(), tt.wantErr)
		})
	}
}

func TestExtractOAInvoiceDataUnparseableOCR(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	st := graph.State{
		KeyOAData: map[string]any{
			"data": []any{
				map[string]any{"name": "单据", "ai_extract_content": "not a json array"},
			},
		},
	}
	drainNode(t, e.extractOAInvoiceData, st)

	assert.Contains(t, st.GetString(KeyOCRResult), "Error parsing AI content")
	assert.Equal(t, "Error parsing AI content", st.GetString(KeyTpOCRs))
	// A record was present, so the short-circuit branch stays unarmed.
	assert.False(t, st.Has(KeyEmptyInvoiceData))
}

func TestOAInvoiceCompliancePath(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{
		Generator: &fakeGenerator{stream: func(req llm.Request) []string {
			switch {
			case strings.Contains(req.SystemPrompt, "发票分类专家"):
				return []string{"差旅"}
			case strings.Contains(req.SystemPrompt, "报销合规审核专家"):
				return []string{"合规：住宿标准符合制度"}
			}
			return nil
		}},
		Retriever: retrieverFunc(func(_ context.Context, req retrieval.Request) ([]retrieval.Chunk, error) {
			assert.Equal(t, []string{"差旅"}, req.Querys)
			return []retrieval.Chunk{{
				Content:       "差旅费报销制度第3条",
				OriginContent: []string{"制度原文"},
				PageNumbers:   []int{3},
				FileName:      "报销制度.pdf",
				Score:         0.8,
			}}, nil
		}),
	})

	events, st := runWorkflow(t, e, graph.State{
		KeyTaskType: TaskOAInvoiceRaw,
		KeyUser:     "张三",
		KeyKBNames:  []string{"oa制度库"},
		KeyOAData: map[string]any{
			"code": 0,
			"data": []any{
				map[string]any{
					"name":               "差旅报销单",
					"explain":            "出差住宿",
					"ai_extract_content": `[{"ocr_result": {"raw_content": "酒店发票 350元"}}]`,
				},
			},
		},
	})

	assert.Equal(t, "差旅", st.GetString(KeyInvoiceCategory))
	assert.Equal(t, "合规：住宿标准符合制度", st.GetString(KeyFinalAnswer))

	// The knowledge-base traversal runs under the OA labels.
	var kbStarted bool
	for _, ev := range eventsOfKind(events, graph.KindNodeStarted) {
		if ev.Node() == "kb_query" {
			kbStarted = true
			assert.Equal(t, "正在检索OA报销制度知识库...", ev.Message())
		}
	}
	assert.True(t, kbStarted)

	finals := eventsOfKind(events, graph.KindFinalMessage)
	require.Len(t, finals, 1)
	assert.Equal(t, "合规：住宿标准符合制度", finals[0].Data["content"])
}
