// Package extract pulls plain text out of uploaded files. Text-like
// formats are decoded locally with a lenient encoding chain; everything
// else (PDF, Office, images) is shipped to the external document
// extraction API, optionally with OCR.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/log"
)

var localExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".log": true,
	".html": true, ".htm": true, ".csv": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".tiff": true, ".tif": true, ".gif": true,
}

// decoders are tried in order for non-UTF-8 text files: single-byte
// western code pages first, then the Chinese encodings that actually
// occur in uploads.
var decoders = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
	simplifiedchinese.GB18030,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// Extractor turns a list of uploaded file paths into one text blob.
type Extractor struct {
	cfg    *config.Holder
	http   *http.Client
	logger log.Logger
}

func NewExtractor(cfg *config.Holder) *Extractor {
	return &Extractor{
		cfg:    cfg,
		http:   &http.Client{Timeout: 300 * time.Second},
		logger: log.GetDefaultLogger(),
	}
}

// Extract reads every file, handling text formats locally and batching the
// rest into one extraction-API call. Per-file sections are joined with a
// "---" separator. forceOCR overrides the automatic OCR decision; passing
// it as true while OCR is globally disabled is an error.
func (e *Extractor) Extract(ctx context.Context, filePaths []string, forceOCR *bool, kbToken string) (string, error) {
	if len(filePaths) == 0 {
		return "", nil
	}
	cfg := e.cfg.Get()

	var localContents []string
	var apiFiles []string
	for _, path := range filePaths {
		ext := strings.ToLower(filepath.Ext(path))
		if !localExtensions[ext] {
			apiFiles = append(apiFiles, path)
			continue
		}
		content, err := readTextFile(path)
		if err != nil {
			e.logger.Error("failed to process %s locally: %v", path, err)
			apiFiles = append(apiFiles, path)
			continue
		}
		localContents = append(localContents, fmt.Sprintf("FILE: %s\n%s", filepath.Base(path), content))
	}

	var apiContent string
	if len(apiFiles) > 0 {
		var err error
		apiContent, err = e.extractViaAPI(ctx, cfg, apiFiles, forceOCR, kbToken)
		if err != nil {
			return "", err
		}
	}

	sections := make([]string, 0, len(localContents)+1)
	sections = append(sections, localContents...)
	if apiContent != "" {
		sections = append(sections, apiContent)
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

func (e *Extractor) extractViaAPI(ctx context.Context, cfg *config.Config, paths []string, forceOCR *bool, kbToken string) (string, error) {
	if cfg.FileExtractionAPI == "" {
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		return "", fmt.Errorf("cannot process files: %s: these file types require an external API, but no API URL is configured", strings.Join(names, ", "))
	}

	if forceOCR != nil && *forceOCR && !cfg.OCREnabled {
		return "", fmt.Errorf("OCR功能已在全局配置中禁用，无法强制启用OCR。请联系管理员修改全局配置。")
	}

	hasImages := false
	for _, p := range paths {
		if imageExtensions[strings.ToLower(filepath.Ext(p))] {
			hasImages = true
			break
		}
	}
	useOCR := hasImages && cfg.OCREnabled
	if forceOCR != nil {
		useOCR = *forceOCR
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", p, err)
		}
		part, err := mw.CreateFormFile("files", filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return "", fmt.Errorf("attach %s: %w", p, err)
		}
	}
	fields := map[string]string{
		"tables":     "True",
		"start_page": "0",
		"end_page":   "300",
		"force_ocr":  pythonBool(useOCR),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	e.logger.Info("document extraction: global_ocr=%v has_images=%v final_ocr=%v files=%d",
		cfg.OCREnabled, hasImages, useOCR, len(paths))

	if kbToken == "" {
		kbToken = cfg.Token
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.FileExtractionAPI, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+kbToken)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("document extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("document extraction failed with status %d: %s", resp.StatusCode, errText)
	}
	var result struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode extraction response: %w", err)
	}
	return result.Content, nil
}

// pythonBool renders the capitalized form the extraction backend expects.
func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// readTextFile decodes a text file, trying UTF-8 first and then each
// legacy encoding until one produces valid text.
func readTextFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("no content extracted from %s", path)
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	for _, enc := range decoders {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return "", fmt.Errorf("no suitable encoding found for %s", path)
}
