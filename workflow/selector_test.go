package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhisuan/graphchat/graph"
)

func TestPickWorkflow(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})

	tests := []struct {
		name  string
		state graph.State
		want  string
	}{
		{
			name:  "explicit summary extract task",
			state: graph.State{KeyTaskType: TaskSummaryExtract},
			want:  "summary_extract",
		},
		{
			name:  "explicit oa invoice task",
			state: graph.State{KeyTaskType: TaskOAInvoiceValidate},
			want:  "oa_invoice",
		},
		{
			name:  "explicit oa invoice raw task",
			state: graph.State{KeyTaskType: TaskOAInvoiceRaw},
			want:  "oa_invoice_raw",
		},
		{
			name:  "explicit uav weather task",
			state: graph.State{KeyTaskType: TaskUAVWeather},
			want:  "uav_weather",
		},
		{
			name:  "explicit json conversion task",
			state: graph.State{KeyTaskType: TaskConvertToJSON},
			want:  "json_convert",
		},
		{
			name:  "uploaded files without knowledge bases",
			state: graph.State{KeyFilePaths: []string{"/tmp/a.pdf"}},
			want:  "uploaded_file",
		},
		{
			name:  "uploaded files with knowledge bases stay on retrieval",
			state: graph.State{KeyFilePaths: []string{"/tmp/a.pdf"}, KeyKBNames: []string{"kb"}},
			want:  "single_file",
		},
		{
			name:  "no scoping at all is general chat",
			state: graph.State{},
			want:  "general",
		},
		{
			name:  "several files fan out",
			state: graph.State{KeyKBNames: []string{"kb"}, KeyFileNames: []string{"a", "b"}},
			want:  "multi_file",
		},
		{
			name:  "several tags fan out",
			state: graph.State{KeyKBNames: []string{"kb"}, KeyTags: []string{"t1", "t2"}},
			want:  "multi_file",
		},
		{
			name: "parallel mode upgrades the fan out",
			state: graph.State{
				KeyKBNames: []string{"kb"}, KeyFileNames: []string{"a", "b"}, KeyParallelMode: true,
			},
			want: "multi_file_parallel",
		},
		{
			name:  "single file",
			state: graph.State{KeyKBNames: []string{"kb"}, KeyFileNames: []string{"a"}},
			want:  "single_file",
		},
		{
			name:  "knowledge bases alone are a single query",
			state: graph.State{KeyKBNames: []string{"kb"}},
			want:  "single_file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := e.pick(tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Name())
		})
	}
}

func TestPickRejectsUnknownTaskType(t *testing.T) {
	t.Parallel()

	e := newTestEngine(Deps{Generator: &fakeGenerator{}})
	_, err := e.pick(graph.State{KeyTaskType: "no_such_task"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未知的任务类型")
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		state   graph.State
		wantErr string
	}{
		{
			name:    "empty query rejected",
			state:   graph.State{},
			wantErr: "用户查询不能为空",
		},
		{
			name:  "oa invoice task may omit the query",
			state: graph.State{KeyTaskType: TaskOAInvoiceValidate, KeyDetailCode: "D001"},
		},
		{
			name: "file names require knowledge bases",
			state: graph.State{
				KeySysQuery: "q", KeyFileNames: []string{"a.pdf"},
			},
			wantErr: "必须同时指定kb_names",
		},
		{
			name: "file names and tags are mutually exclusive",
			state: graph.State{
				KeySysQuery: "q", KeyKBNames: []string{"kb"},
				KeyFileNames: []string{"a.pdf"}, KeyTags: []string{"t"},
			},
			wantErr: "不能同时指定",
		},
		{
			name: "history entries need a valid role",
			state: graph.State{
				KeySysQuery: "q",
				KeyHistory:  []any{map[string]any{"role": "robot", "content": "hi"}},
			},
			wantErr: "role无效",
		},
		{
			name: "history entries need string content",
			state: graph.State{
				KeySysQuery: "q",
				KeyHistory:  []any{map[string]any{"role": "user", "content": 7}},
			},
			wantErr: "缺少content字段",
		},
		{
			name: "well formed request passes",
			state: graph.State{
				KeySysQuery: "q", KeyKBNames: []string{"kb"},
				KeyHistory: []any{
					map[string]any{"role": "user", "content": "你好"},
					map[string]any{"role": "assistant", "content": "您好"},
				},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateRequest(tt.state)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
