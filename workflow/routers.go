package workflow

import (
	"strings"

	"github.com/zhisuan/graphchat/graph"
)

// Routers are pure functions from State to the next node name. They never
// mutate state; nodes own all writes.

// nextRouterOn branches to answer generation when the given key holds a
// non-empty value, and to the error handler otherwise.
func nextRouterOn(key string) func(st graph.State) string {
	return func(st graph.State) string {
		if st.GetString(key) != "" {
			return "generate_answer"
		}
		return "handle_error"
	}
}

// shouldRunRetrievedConversion skips source attribution when answer
// generation recorded an error.
func shouldRunRetrievedConversion(st graph.State) string {
	if st.GetString(KeyErrorMsg) == "" {
		return "retrieved_conversion"
	}
	return graph.End
}

func routeAfterPreprocessing(st graph.State) string {
	if st.GetBool(KeyPreprocessingFailed) {
		return "handle_error"
	}
	return "document_classifier"
}

func routeAfterClassification(st graph.State) string {
	if strings.Contains(st.GetString(KeyClassification), "论文") {
		return "summary_extraction"
	}
	return "summary_generator"
}

func routeAfterInvoiceExtraction(st graph.State) string {
	if st.Has(KeyEmptyInvoiceData) {
		return "empty_invoice_data"
	}
	return "classify_invoice"
}

// uavWeatherRouter diverts to the fallback answer when the weather lookup
// came back empty.
func uavWeatherRouter(st graph.State) string {
	if len(st.GetMap(KeyWeatherData)) > 0 {
		return "flight_analyzer"
	}
	return "weather_fallback"
}
