package workflow

// State keys shared across nodes. Nodes communicate exclusively through
// these keys; routers read them to pick branches.
const (
	// Request inputs.
	KeySysQuery     = "sys_query"
	KeySystemPrompt = "system_prompt"
	KeyTemperature  = "temperature"
	KeyModelName    = "model_name"
	KeyHistory      = "conversation_history"
	KeyKBNames      = "kb_names"
	KeyFileNames    = "file_names"
	KeyFilePaths    = "file_paths"
	KeyTags         = "tags"
	KeyKBToken      = "kb_token"
	KeyTopK         = "top_k"
	KeyTopN         = "top_n"
	KeyKeyWeight    = "key_weight"
	KeyInputBody    = "input_body"
	KeyOutputBody   = "output_body"
	KeyForceOCR     = "force_ocr"
	KeyTaskType     = "task_type"
	KeyParallelMode = "parallel_mode"
	KeySessionID    = "session_id"
	KeyUser         = "user"

	// Intermediate products.
	KeyFileContent         = "file_content"
	KeyExtractedTexts      = "extracted_texts"
	KeyEnhancedQuery       = "enhanced_query"
	KeyKBContent           = "kb_content"
	KeyContrastiveContent  = "contrastive_content"
	KeyRetrievedDocsMeta   = "retrieved_docs_metadata"
	KeyFileSummaries       = "file_summaries"
	KeyAllFileDocs         = "all_file_docs"
	KeyFinalAnswer         = "final_answer"
	KeyJSONResult          = "json_result"
	KeyErrorMsg            = "error_msg"
	KeyLastError           = "last_error"
	KeyLastErrorType       = "last_error_type"
	KeyIsValid             = "is_valid"
	KeyPreprocessingFailed = "preprocessing_failed"
	KeyProcessedText       = "processed_text"
	KeyClassification      = "classification"
	KeyClassificationRaw   = "classification_result"
	KeySummary             = "summary"
	KeyKeywords            = "keywords"
	KeyExtractionRaw       = "extraction_result"
	KeyGenerationRaw       = "generation_result"

	// OA invoice workflow.
	KeyDetailCode       = "detail_code"
	KeyOAData           = "oa_data"
	KeyInfos            = "infos"
	KeyOCRResult        = "ocr_result"
	KeyMinioFileList    = "minio_file_list"
	KeyExplains         = "explains"
	KeyTpOCRs           = "tp_ocrs"
	KeyEmptyInvoiceData = "empty_invoice_data"
	KeyInvoiceCategory  = "invoice_category"
	KeyComplianceResult = "compliance_result"

	// UAV weather workflow.
	KeyStandardizedAddress = "standardized_address"
	KeyWeatherData         = "weather_data"
)

// Task types recognized by the selector.
const (
	TaskDefault           = "default"
	TaskSummaryExtract    = "summary_extract"
	TaskOAInvoiceValidate = "oa_invoice_validate"
	TaskOAInvoiceRaw      = "oa_invoice_validate_raw"
	TaskUAVWeather        = "uav_weather_assistant"
	TaskConvertToJSON     = "convert_to_json"
)
