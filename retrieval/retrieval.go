// Package retrieval talks to the knowledge-base backend: it issues rerank
// queries, expands the reranked chunks into page-level passages and
// assembles a token-budgeted context block for prompting.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/log"
)

// Chunk is one reranked search hit as returned by the backend. A chunk may
// cover several source pages, carried in parallel origin_content and
// page_number lists.
type Chunk struct {
	Content        string         `json:"content"`
	OriginContent  []string       `json:"origin_content"`
	PageNumbers    []int          `json:"page_number"`
	FileName       string         `json:"file_name"`
	KBName         string         `json:"kb_name"`
	Score          float64        `json:"score"`
	CustomMetadata map[string]any `json:"custom_metadata"`
}

// Result is one page-level passage after expansion.
type Result struct {
	SearchContent  string
	OriginContent  string
	Score          float64
	Source         string
	FileName       string
	KBName         string
	PageNumber     *int
	CustomMetadata map[string]any
}

// DocMeta is the per-passage metadata surfaced to clients alongside the
// generated answer, later matched against model-selected ids.
type DocMeta struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	FileName   string  `json:"file_name"`
	PageNumber *int    `json:"page_number"`
	KBName     string  `json:"kb_name"`
}

// Request describes one knowledge-base query. CustomFilters carries
// backend-specific filter fields (file_name lists, tag values) untouched.
type Request struct {
	KBNames       []string
	FileNames     []string
	CustomFilters map[string]any
	Querys        []string
	TopK          int
	TopN          int
	KeyWeight     float64
	Token         string
}

// Client queries the knowledge-base API.
type Client struct {
	cfg    *config.Holder
	http   *http.Client
	logger log.Logger
}

func NewClient(cfg *config.Holder) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 120 * time.Second},
		logger: log.GetDefaultLogger(),
	}
}

// Query posts a rerank query to the knowledge-base backend. Zero-valued
// tuning fields fall back to the configured defaults and blank file names
// are dropped before sending.
func (c *Client) Query(ctx context.Context, req Request) ([]Chunk, error) {
	cfg := c.cfg.Get()
	if req.TopK == 0 {
		req.TopK = cfg.DefaultTopK
	}
	if req.TopN == 0 {
		req.TopN = cfg.DefaultTopN
	}
	if req.KeyWeight == 0 {
		req.KeyWeight = cfg.DefaultKeyWeight
	}
	if req.Token == "" {
		req.Token = cfg.Token
	}

	fileNames := make([]string, 0, len(req.FileNames))
	for _, name := range req.FileNames {
		if strings.TrimSpace(name) != "" {
			fileNames = append(fileNames, name)
		}
	}

	payload := map[string]any{
		"kb_names":       req.KBNames,
		"file_names":     fileNames,
		"custom_filters": req.CustomFilters,
		"top_k":          req.TopK,
		"n":              req.TopN,
		"key_weight":     req.KeyWeight,
		"querys":         req.Querys,
		"rerank_model":   cfg.RerankModel,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal kb query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.KnowledgeBaseAPI, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build kb query: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("knowledge base query failed: status=%d body=%s", resp.StatusCode, errText)
		return nil, fmt.Errorf("knowledge base query failed with status %d: %s", resp.StatusCode, errText)
	}

	var chunks []Chunk
	if err := json.NewDecoder(resp.Body).Decode(&chunks); err != nil {
		return nil, fmt.Errorf("decode kb query response: %w", err)
	}
	return chunks, nil
}
