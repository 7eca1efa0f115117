package workflow

import (
	"github.com/zhisuan/graphchat/graph"
)

// Graph builders, one per workflow. Node names are the routing vocabulary;
// the events a node emits may use a finer-grained name of their own.

func (e *Engine) singleFileGraph() *graph.Runnable {
	return graph.NewGraph("single_file").
		AddNode("file_extraction", "提取上传文件内容", e.fileExtraction).
		AddNode("query_enhancement", "结合历史优化查询", e.queryEnhancement).
		AddNode("kb_query", "查询知识库", e.singleFileKBQuery).
		AddNode("generate_answer", "生成最终回答", e.knowledgeFinalAnswer).
		AddNode("retrieved_conversion", "筛选答案来源", e.retrievedConversion).
		AddNode("handle_error", "错误处理", e.handleError).
		SetEntryPoint("file_extraction").
		AddEdge("file_extraction", "query_enhancement").
		AddEdge("query_enhancement", "kb_query").
		AddConditionalEdge("kb_query", nextRouterOn(KeyKBContent), "generate_answer", "handle_error").
		AddConditionalEdge("generate_answer", shouldRunRetrievedConversion, "retrieved_conversion", graph.End).
		AddEdge("retrieved_conversion", graph.End).
		AddEdge("handle_error", graph.End).
		MustCompile()
}

func (e *Engine) multiFileGraph() *graph.Runnable {
	return graph.NewGraph("multi_file").
		AddNode("file_extraction", "提取上传文件内容", e.fileExtraction).
		AddNode("query_enhancement", "结合历史优化查询", e.queryEnhancement).
		AddNode("multi_file_kb_query", "逐项查询并总结", e.multiFileKBQuery).
		AddNode("generate_answer", "生成最终回答", e.knowledgeFinalAnswer).
		AddNode("retrieved_conversion", "筛选答案来源", e.retrievedConversion).
		AddNode("handle_error", "错误处理", e.handleError).
		SetEntryPoint("file_extraction").
		AddEdge("file_extraction", "query_enhancement").
		AddEdge("query_enhancement", "multi_file_kb_query").
		AddConditionalEdge("multi_file_kb_query", nextRouterOn(KeyContrastiveContent), "generate_answer", "handle_error").
		AddConditionalEdge("generate_answer", shouldRunRetrievedConversion, "retrieved_conversion", graph.End).
		AddEdge("retrieved_conversion", graph.End).
		AddEdge("handle_error", graph.End).
		MustCompile()
}

func (e *Engine) multiFileParallelGraph() *graph.Runnable {
	return graph.NewGraph("multi_file_parallel").
		AddNode("file_extraction", "提取上传文件内容", e.fileExtraction).
		AddNode("query_enhancement", "结合历史优化查询", e.queryEnhancement).
		AddNode("parallel_kb_query", "并行逐项查询并总结", e.parallelMultiFileKBQuery).
		AddNode("generate_answer", "生成最终回答", e.knowledgeFinalAnswer).
		AddNode("convert_to_json", "结果转换为JSON", e.answerJSONConversion).
		AddNode("retrieved_conversion", "筛选答案来源", e.retrievedConversion).
		SetEntryPoint("file_extraction").
		AddEdge("file_extraction", "query_enhancement").
		AddEdge("query_enhancement", "parallel_kb_query").
		AddEdge("parallel_kb_query", "generate_answer").
		AddEdge("generate_answer", "convert_to_json").
		AddEdge("convert_to_json", "retrieved_conversion").
		AddEdge("retrieved_conversion", graph.End).
		MustCompile()
}

func (e *Engine) uploadedFileGraph() *graph.Runnable {
	return graph.NewGraph("uploaded_file").
		AddNode("file_extraction", "提取上传文件内容", e.fileExtraction).
		AddNode("generate_answer", "生成最终回答", e.knowledgeFinalAnswer).
		AddNode("convert_to_json", "结果转换为JSON", e.answerJSONConversion).
		SetEntryPoint("file_extraction").
		AddEdge("file_extraction", "generate_answer").
		AddEdge("generate_answer", "convert_to_json").
		AddEdge("convert_to_json", graph.End).
		MustCompile()
}

func (e *Engine) generalGraph() *graph.Runnable {
	return graph.NewGraph("general").
		AddNode("generate_answer", "生成通用回答", e.generalFinalAnswer).
		SetEntryPoint("generate_answer").
		AddEdge("generate_answer", graph.End).
		MustCompile()
}

func (e *Engine) jsonConvertGraph() *graph.Runnable {
	return graph.NewGraph("json_convert").
		AddNode("convert_to_json", "输入转换为JSON", e.jsonConversion).
		SetEntryPoint("convert_to_json").
		AddEdge("convert_to_json", graph.End).
		MustCompile()
}

func (e *Engine) summaryExtractGraph() *graph.Runnable {
	return graph.NewGraph("summary_extract").
		AddNode("document_preprocessing", "提取并校验文档", e.documentPreprocessing).
		AddNode("document_classifier", "判定文档类型", e.documentClassifier).
		AddNode("summary_extraction", "提取论文摘要", e.summaryExtraction).
		AddNode("summary_generator", "生成通用摘要", e.summaryGenerator).
		AddNode("final_response", "输出结构化结果", e.summaryFinalResponse).
		AddNode("handle_error", "错误处理", e.handleError).
		SetEntryPoint("document_preprocessing").
		AddConditionalEdge("document_preprocessing", routeAfterPreprocessing, "document_classifier", "handle_error").
		AddConditionalEdge("document_classifier", routeAfterClassification, "summary_extraction", "summary_generator").
		AddEdge("summary_extraction", "final_response").
		AddEdge("summary_generator", "final_response").
		AddEdge("final_response", graph.End).
		AddEdge("handle_error", graph.End).
		MustCompile()
}

func (e *Engine) oaInvoiceGraph() *graph.Runnable {
	g := graph.NewGraph("oa_invoice").
		AddNode("get_oa_data", "获取OA报销单数据", e.getOAExpenseData).
		SetEntryPoint("get_oa_data").
		AddEdge("get_oa_data", "extract_invoice")
	return e.addOAInvoiceTail(g).MustCompile()
}

// oaInvoiceRawGraph starts from caller-supplied oa_data instead of fetching
// it from the OA system.
func (e *Engine) oaInvoiceRawGraph() *graph.Runnable {
	g := graph.NewGraph("oa_invoice_raw").
		SetEntryPoint("extract_invoice")
	return e.addOAInvoiceTail(g).MustCompile()
}

func (e *Engine) addOAInvoiceTail(g *graph.Graph) *graph.Graph {
	return g.
		AddNode("extract_invoice", "提取发票结构化数据", e.extractOAInvoiceData).
		AddNode("empty_invoice_data", "返回空OCR结构化数据", e.emptyInvoiceData).
		AddNode("classify_invoice", "发票分类", e.invoiceClassifier).
		AddNode("kb_query", "检索报销制度", e.oaKBQuery).
		AddNode("compliance_check", "合规校验", e.complianceCheck).
		AddNode("convert_to_json", "结果转换为JSON", e.answerJSONConversion).
		AddConditionalEdge("extract_invoice", routeAfterInvoiceExtraction, "empty_invoice_data", "classify_invoice").
		AddEdge("empty_invoice_data", graph.End).
		AddEdge("classify_invoice", "kb_query").
		AddEdge("kb_query", "compliance_check").
		AddEdge("compliance_check", "convert_to_json").
		AddEdge("convert_to_json", graph.End)
}

func (e *Engine) uavWeatherGraph() *graph.Runnable {
	return graph.NewGraph("uav_weather").
		AddNode("address_standardizer", "地址标准化", e.addressStandardizer).
		AddNode("weather_tool", "查询天气", e.weatherTool).
		AddNode("flight_analyzer", "飞行影响分析", e.flightAnalyzer).
		AddNode("weather_fallback", "天气查询失败回复", e.weatherFallback).
		SetEntryPoint("address_standardizer").
		AddEdge("address_standardizer", "weather_tool").
		AddConditionalEdge("weather_tool", uavWeatherRouter, "flight_analyzer", "weather_fallback").
		AddEdge("flight_analyzer", graph.End).
		AddEdge("weather_fallback", graph.End).
		MustCompile()
}
