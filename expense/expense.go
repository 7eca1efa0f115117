// Package expense fetches OA expense-report records, the raw input of the
// invoice validation workflow.
package expense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/log"
)

const recordsPath = "/api/expense/ai-records"

// Client calls the OA expense backend.
type Client struct {
	cfg    *config.Holder
	http   *http.Client
	logger log.Logger
}

func NewClient(cfg *config.Holder) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: log.GetDefaultLogger(),
	}
}

// Fetch loads the expense records for one report. detail_code travels as a
// query parameter, paging and the OCR switch in the JSON body. The
// configured URL may point at the records endpoint or at the service root;
// both are normalized to the same endpoint.
func (c *Client) Fetch(ctx context.Context, detailCode string, forceOCR bool) (map[string]any, error) {
	cfg := c.cfg.Get()

	endpoint := strings.TrimSuffix(cfg.OAExpenseAPIURL, recordsPath) + recordsPath
	query := url.Values{}
	query.Set("detail_code", detailCode)

	body, err := json.Marshal(map[string]any{
		"pageNum":   cfg.OAExpensePageNum,
		"pageSize":  cfg.OAExpensePageSize,
		"force_ocr": forceOCR,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal expense request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+query.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build expense request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch expense records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("expense records request failed: status=%d body=%s", resp.StatusCode, errText)
		return nil, fmt.Errorf("expense records request failed with status %d", resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode expense records: %w", err)
	}
	return data, nil
}
