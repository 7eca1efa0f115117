package workflow

import (
	"errors"
	"fmt"

	"github.com/zhisuan/graphchat/graph"
)

// eventBuffer is the emitter channel depth; large enough that short bursts
// of node events do not stall the traversal on a slow consumer.
const eventBuffer = 64

// Select validates the request state, picks the workflow graph the request
// shape calls for and binds it into a ready-to-run Processor.
//
// An explicit task_type wins. Without one, the default chat dispatch is by
// request shape: uploaded files without knowledge bases answer from the
// uploads alone; no retrieval scoping at all is a general chat; several
// files or tags fan out per item; anything else is a single-file query.
func (e *Engine) Select(initial graph.State) (*graph.Processor, error) {
	if err := ValidateRequest(initial); err != nil {
		return nil, err
	}

	runnable, err := e.pick(initial)
	if err != nil {
		return nil, err
	}
	e.deps.Logger.Info("selected workflow %s (task_type=%q)", runnable.Name(), initial.GetString(KeyTaskType))

	em := graph.NewEmitter(initial.GetString(KeySessionID), eventBuffer)
	return graph.NewProcessor(runnable, initial, em), nil
}

func (e *Engine) pick(st graph.State) (*graph.Runnable, error) {
	switch taskType := st.GetString(KeyTaskType); taskType {
	case TaskSummaryExtract:
		return e.summaryExtractGraph(), nil
	case TaskOAInvoiceValidate:
		return e.oaInvoiceGraph(), nil
	case TaskOAInvoiceRaw:
		return e.oaInvoiceRawGraph(), nil
	case TaskUAVWeather:
		return e.uavWeatherGraph(), nil
	case TaskConvertToJSON:
		return e.jsonConvertGraph(), nil
	case "", TaskDefault:
	default:
		return nil, fmt.Errorf("未知的任务类型: %s", taskType)
	}

	kbNames := st.GetStrings(KeyKBNames)
	fileNames := st.GetStrings(KeyFileNames)
	tags := st.GetStrings(KeyTags)
	filePaths := st.GetStrings(KeyFilePaths)

	switch {
	case len(filePaths) > 0 && len(kbNames) == 0:
		return e.uploadedFileGraph(), nil
	case len(kbNames) == 0 && len(fileNames) == 0 && len(tags) == 0 && len(filePaths) == 0:
		return e.generalGraph(), nil
	case len(fileNames) > 1 || len(tags) > 1:
		if st.GetBool(KeyParallelMode) {
			return e.multiFileParallelGraph(), nil
		}
		return e.multiFileGraph(), nil
	default:
		return e.singleFileGraph(), nil
	}
}

// ValidateRequest checks the request invariants before any node runs.
func ValidateRequest(st graph.State) error {
	if st.GetString(KeySysQuery) == "" && st.GetString(KeyTaskType) != TaskOAInvoiceValidate &&
		st.GetString(KeyTaskType) != TaskOAInvoiceRaw {
		return errors.New("用户查询不能为空")
	}
	if len(st.GetStrings(KeyFileNames)) > 0 && len(st.GetStrings(KeyKBNames)) == 0 {
		return errors.New("指定file_names时必须同时指定kb_names")
	}
	if len(st.GetStrings(KeyFileNames)) > 0 && len(st.GetStrings(KeyTags)) > 0 {
		return errors.New("file_names和tags不能同时指定")
	}
	if err := validateHistory(st); err != nil {
		return err
	}
	return nil
}

func validateHistory(st graph.State) error {
	raw, ok := st[KeyHistory]
	if !ok || raw == nil {
		return nil
	}
	// Typed history built in-process is trusted; only the JSON-decoded
	// shape needs checking.
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("conversation_history第%d项必须是对象", i+1)
		}
		role, _ := m["role"].(string)
		if role != "user" && role != "assistant" && role != "system" {
			return fmt.Errorf("conversation_history第%d项的role无效: %q", i+1, role)
		}
		if _, ok := m["content"].(string); !ok {
			return fmt.Errorf("conversation_history第%d项缺少content字段", i+1)
		}
	}
	return nil
}
