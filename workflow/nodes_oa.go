package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
)

// getOAExpenseData pulls the expense-report records for the requested
// detail code from the OA system.
func (e *Engine) getOAExpenseData(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "get_oa_expense_data", "正在获取OA报销单数据..."); err != nil {
		return err
	}

	forceOCR := false
	if f := forceOCRFromState(st); f != nil {
		forceOCR = *f
	}
	data, err := e.deps.Expense.Fetch(ctx, st.GetString(KeyDetailCode), forceOCR)
	if err != nil {
		msg := fmt.Sprintf("获取OA报销单数据失败: %v", err)
		e.deps.Logger.Error("%s", msg)
		st[KeyErrorMsg] = msg
		return em.Error(ctx, msg)
	}

	st[KeyOAData] = data
	return em.NodeFinished(ctx, "get_oa_expense_data", "OA报销单数据获取完成")
}

// extractOAInvoiceData flattens the raw OA payload into prompt-ready text:
// report fields, OCR contents and attachment lists per expense record. An
// empty OCR harvest short-circuits the workflow via empty_invoice_data.
func (e *Engine) extractOAInvoiceData(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "extract_invoice_data", "正在提取发票数据..."); err != nil {
		return err
	}

	var oaData map[string]any
	switch v := st[KeyOAData].(type) {
	case map[string]any:
		oaData = v
	case string:
		if err := json.Unmarshal([]byte(v), &oaData); err != nil {
			msg := fmt.Sprintf("oa_data参数不是合法的JSON字符串: %v", err)
			st[KeyErrorMsg] = msg
			return em.Error(ctx, msg)
		}
	default:
		msg := "oa_data参数必须是字典或可转为字典的JSON字符串"
		st[KeyErrorMsg] = msg
		return em.Error(ctx, msg)
	}

	// The backend wraps the expense records in a list under "data"; each
	// record carries its own name.
	items, _ := oaData["data"].([]any)

	var infos, ocrResults, minioFiles, tpOCRs []string
	explains := ""
	for _, entry := range items {
		record, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := record["name"].(string)

		fields := make(map[string]any, len(record))
		for k, v := range record {
			if k != "ai_extract_content" {
				fields[k] = v
			}
		}
		if info, err := json.Marshal(fields); err == nil {
			infos = append(infos, string(info))
		}

		if raw, ok := record["minio_file_list"].(string); ok && raw != "" {
			var files []string
			if json.Unmarshal([]byte(raw), &files) == nil {
				minioFiles = append(minioFiles, files...)
			}
		}

		if explain, ok := record["explain"].(string); ok {
			explains += explain + "\n"
		}

		ocrContent := ""
		if raw, ok := record["ai_extract_content"].(string); ok && raw != "" {
			contents, err := parseAIExtractContent(raw)
			if err != nil {
				e.deps.Logger.Warn("parse ai_extract_content for %s: %v", name, err)
				ocrContent = "Error parsing AI content"
			} else {
				ocrContent = strings.Join(contents, "\n")
			}
		}
		ocrResults = append(ocrResults, fmt.Sprintf("\n%s - \n%s", name, ocrContent))
		tpOCRs = append(tpOCRs, ocrContent)
	}

	st[KeyInfos] = strings.Join(infos, "\n")
	st[KeyOCRResult] = strings.Join(ocrResults, "\n")
	st[KeyMinioFileList] = strings.Join(minioFiles, "\n")
	st[KeyExplains] = explains
	st[KeyTpOCRs] = strings.Join(tpOCRs, "")

	// No records at all: hand the extracted (all-empty) fields straight
	// back instead of classifying nothing.
	if len(tpOCRs) == 0 {
		st[KeyEmptyInvoiceData] = map[string]any{
			"infos":           st.GetString(KeyInfos),
			"ocr_result":      st.GetString(KeyOCRResult),
			"minio_file_list": st.GetString(KeyMinioFileList),
			"explains":        st.GetString(KeyExplains),
			"tp_ocrs":         st.GetString(KeyTpOCRs),
		}
	}

	return em.NodeFinished(ctx, "extract_invoice_data", "发票数据提取完成")
}

// parseAIExtractContent decodes the per-record OCR payload: a JSON array of
// objects each carrying ocr_result.raw_content.
func parseAIExtractContent(raw string) ([]string, error) {
	var entries []struct {
		OCRResult struct {
			RawContent string `json:"raw_content"`
		} `json:"ocr_result"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(entries))
	for _, entry := range entries {
		contents = append(contents, entry.OCRResult.RawContent)
	}
	return contents, nil
}

// invoiceClassifier names the dominant invoice category from the OCR text,
// which then drives the policy retrieval query.
func (e *Engine) invoiceClassifier(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "invoice_classify", "正在进行发票分类..."); err != nil {
		return err
	}

	ocr := st.GetString(KeyOCRResult)
	if strings.TrimSpace(ocr) == "" {
		ocr = "暂无OCR识别结果"
	}
	explains := st.GetString(KeyExplains)
	if strings.TrimSpace(explains) == "" {
		explains = "暂无发票说明"
	}

	category := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        "请根据提供的发票信息进行分类",
		SystemPrompt: fmt.Sprintf(invoiceClassifyPrompt, ocr, explains),
		Temperature:  temperatureFromState(st),
		ModelName:    st.GetString(KeyModelName),
	}) {
		category += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyInvoiceCategory] = category

	return em.NodeFinishedCompleted(ctx, "invoice_classify", "发票分类完成", category)
}

// oaKBQuery retrieves reimbursement-policy passages for the classified
// invoice category. It reuses the knowledge-base traversal under OA labels
// and without any file or tag scoping.
func (e *Engine) oaKBQuery(ctx context.Context, st graph.State, em *graph.Emitter) error {
	st[KeySysQuery] = st.GetString(KeyInvoiceCategory)
	st[KeyFileNames] = []string{}
	st[KeyTags] = []string{}

	if err := e.runKBQuery(ctx, st, em, kbQueryOpts{
		node:      "kb_query",
		startMsg:  func(string) string { return "正在检索OA报销制度知识库..." },
		finishMsg: "OA报销制度知识库检索完成",
	}); err != nil {
		return err
	}

	// Downstream OA routing reads error_msg, not last_error.
	if lastErr := st.GetString(KeyLastError); lastErr != "" {
		st[KeyErrorMsg] = lastErr
	}
	return nil
}

// complianceCheck audits the expense report against the retrieved policy
// and publishes the verdict as the final message.
func (e *Engine) complianceCheck(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "compliance_check", "正在进行合规校验..."); err != nil {
		return err
	}

	user := st.GetString(KeyUser)
	if strings.TrimSpace(user) == "" {
		user = "未知用户"
	}
	infos := st.GetString(KeyInfos)
	if strings.TrimSpace(infos) == "" {
		infos = "暂无报销信息"
	}
	ocr := st.GetString(KeyOCRResult)
	if strings.TrimSpace(ocr) == "" {
		ocr = "暂无OCR识别结果"
	}
	kbContent := st.GetString(KeyKBContent)
	if strings.TrimSpace(kbContent) == "" {
		kbContent = "暂无知识库内容"
	}

	result := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        "请根据提供的发票信息和知识库内容进行合规校验",
		SystemPrompt: fmt.Sprintf(complianceCheckPrompt, nowDate(), user, infos, ocr, kbContent),
		Temperature:  temperatureFromState(st),
		ModelName:    st.GetString(KeyModelName),
	}) {
		result += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyComplianceResult] = result
	st[KeyFinalAnswer] = result

	if err := em.NodeFinishedCompleted(ctx, "compliance_check", "合规校验完成", result); err != nil {
		return err
	}
	return em.FinalMessage(ctx, result)
}

// emptyInvoiceData returns the extracted record fields directly when the
// payload held no expense records, instead of running classification and
// compliance.
func (e *Engine) emptyInvoiceData(ctx context.Context, st graph.State, em *graph.Emitter) error {
	data := st[KeyEmptyInvoiceData]
	if err := em.Custom(ctx, "empty_invoice_data", map[string]any{"data": data}); err != nil {
		return err
	}
	return em.Complete(ctx, "未提取到有效的OCR内容，已直接返回结构化数据")
}
