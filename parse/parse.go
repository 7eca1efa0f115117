// Package parse recovers structured data from model output. Model answers
// are best-effort JSON at most: fenced, truncated, single-quoted or mixed
// with prose. Extraction runs a cascade of strategies from strict to
// lenient and stops at the first one that yields a result.
package parse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	fenceRe       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	idsObjectRe   = regexp.MustCompile(`\{[^{]*"ids"[^}]*\}`)
	idsNullRe     = regexp.MustCompile(`"ids"\s*:\s*null`)
	idsArrayRe    = regexp.MustCompile(`"ids"\s*:\s*\[(.*?)\]`)
	quotedValueRe = regexp.MustCompile(`"([^"]*)"`)
	bareIDRe      = regexp.MustCompile(`\b(?:ID|id)\d+\b`)
)

// StripFences removes a surrounding markdown code fence, returning the
// inner text. Text without a fence comes back trimmed but otherwise
// unchanged.
func StripFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractJSONBlock parses the first JSON object found in a model answer,
// looking inside code fences first and repairing malformed JSON before
// giving up.
func ExtractJSONBlock(text string) (map[string]any, bool) {
	candidate := StripFences(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return obj, true
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// ExtractIDs pulls the document id list out of a relevance-filtering
// answer. The expected shape is {"ids": ["1", "2"]} or {"ids": null} for
// "nothing relevant", but real answers drift from that, so strategies are
// tried in order:
//
//  1. strict JSON after fence stripping
//  2. JSON repair
//  3. the innermost {... "ids" ...} object
//  4. a literal "ids": null
//  5. quoted strings inside an "ids": [...] array
//  6. bare ID1 / id1 tokens anywhere in the text
//
// The boolean reports whether any strategy recognized the answer; a
// recognized answer may still carry zero ids ("ids": null or []).
func ExtractIDs(text string) ([]string, bool) {
	candidate := StripFences(text)

	if ids, ok := idsFromJSON(candidate); ok {
		return ids, true
	}

	if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
		if ids, ok := idsFromJSON(repaired); ok {
			return ids, true
		}
	}

	if m := idsObjectRe.FindString(candidate); m != "" {
		if ids, ok := idsFromJSON(m); ok {
			return ids, true
		}
	}

	if idsNullRe.MatchString(candidate) {
		return nil, true
	}

	if m := idsArrayRe.FindStringSubmatch(candidate); m != nil {
		var ids []string
		for _, q := range quotedValueRe.FindAllStringSubmatch(m[1], -1) {
			if q[1] != "" {
				ids = append(ids, q[1])
			}
		}
		return ids, true
	}

	if tokens := bareIDRe.FindAllString(candidate, -1); len(tokens) > 0 {
		ids := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			ids = append(ids, strings.TrimLeft(tok, "IDid"))
		}
		return ids, true
	}

	return nil, false
}

func idsFromJSON(s string) ([]string, bool) {
	var obj struct {
		IDs *[]any `json:"ids"`
	}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	if obj.IDs == nil {
		// Valid JSON without an "ids" key is not this answer shape.
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &probe); err != nil {
			return nil, false
		}
		if _, present := probe["ids"]; !present {
			return nil, false
		}
		return nil, true
	}
	var ids []string
	for _, v := range *obj.IDs {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		case float64:
			ids = append(ids, strconv.FormatFloat(id, 'f', -1, 64))
		}
	}
	return ids, true
}
