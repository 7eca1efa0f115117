// Package weather scrapes current conditions and a short hourly forecast
// from the Baidu weather page. The page embeds its data as a JSON blob in
// a window.tplData script tag; there is no official API, so failures of
// any kind degrade to an empty result instead of an error.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kaptinlin/jsonrepair"

	"github.com/zhisuan/graphchat/log"
)

const baseURL = "https://weathernew.pae.baidu.com/weathernew/pc"

var tplDataRe = regexp.MustCompile(`(?s)window\.tplData = ({.*?});`)

// Rotating a plain browser UA is enough to keep the page serving the
// embedded data blob.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Client fetches weather conditions for a location.
type Client struct {
	http    *http.Client
	logger  log.Logger
	now     func() time.Time
	baseURL string
}

func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  log.GetDefaultLogger(),
		now:     time.Now,
		baseURL: baseURL,
	}
}

// Get returns the weather data map for a standardized location name, or an
// empty map when the location is blank, the page is unreachable or its
// data blob cannot be parsed.
func (c *Client) Get(ctx context.Context, location string) map[string]any {
	if strings.TrimSpace(location) == "" {
		c.logger.Warn("weather lookup got an empty location")
		return map[string]any{}
	}

	query := url.Values{}
	query.Set("query", location+" 天气")
	query.Set("srcid", "4982")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return map[string]any{}
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Referer", "https://www.baidu.com/")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,or;q=0.8,zh-TW;q=0.7")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("weather request failed for %s: %v", location, err)
		return map[string]any{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("weather request for %s returned status %d", location, resp.StatusCode)
		return map[string]any{}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		c.logger.Error("weather page parse failed for %s: %v", location, err)
		return map[string]any{}
	}
	return c.parsePage(doc)
}

// parsePage extracts the tplData blob and shapes the current conditions
// plus the next three hourly forecast entries.
func (c *Client) parsePage(doc *goquery.Document) map[string]any {
	var blob string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "window.tplData") {
			return true
		}
		if m := tplDataRe.FindStringSubmatch(text); m != nil {
			blob = m[1]
			return false
		}
		return true
	})
	if blob == "" {
		c.logger.Error("weather page carries no window.tplData blob")
		return map[string]any{}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		// The blob is JS object literal territory; repair before giving up.
		repaired, rerr := jsonrepair.JSONRepair(blob)
		if rerr != nil || json.Unmarshal([]byte(repaired), &data) != nil {
			c.logger.Error("weather tplData blob is not parseable: %v", err)
			return map[string]any{}
		}
	}

	weather, ok := data["weather"].(map[string]any)
	if !ok {
		c.logger.Error("weather tplData blob has no weather section")
		return map[string]any{}
	}

	return map[string]any{
		"current_time":       stringOr(weather["update_time"], c.now().Format("2006-01-02 15:04")),
		"wind_power":         stringOr(weather["wind_power"], "N/A"),
		"wind_direction":     stringOr(weather["wind_direction"], "N/A"),
		"temperature":        stringOr(weather["temperature"], "N/A"),
		"humidity":           stringOr(weather["humidity"], "N/A"),
		"weather_condition":  stringOr(weather["weather"], "N/A"),
		"hourly_forecast_3h": c.hourlyForecast(data),
	}
}

// hourlyForecast picks the first forecast entry at or after the current
// hour and the two following it; when the feed is older than now it falls
// back to the first three entries.
func (c *Client) hourlyForecast(data map[string]any) []map[string]any {
	forecasts := []map[string]any{}

	forecastData, _ := data["24_hour_forecast"].(map[string]any)
	infoAny, _ := forecastData["info"].([]any)
	if len(infoAny) == 0 {
		return forecasts
	}

	nowKey := c.now().Format("2006010215")
	start := -1
	for idx, entryAny := range infoAny {
		entry, ok := entryAny.(map[string]any)
		if !ok {
			continue
		}
		if stringOr(entry["hour"], "") >= nowKey {
			start = idx
			break
		}
	}
	if start < 0 {
		start = 0
	}
	end := start + 3
	if end > len(infoAny) {
		end = len(infoAny)
	}

	for _, entryAny := range infoAny[start:end] {
		entry, ok := entryAny.(map[string]any)
		if !ok {
			continue
		}
		hour := stringOr(entry["hour"], "")
		if ts, err := time.Parse("2006010215", hour); err == nil {
			hour = ts.Format("2006-01-02 15:00")
		}
		forecasts = append(forecasts, map[string]any{
			"hour":           hour,
			"weather":        stringOr(entry["weather"], "N/A"),
			"temperature":    stringOr(entry["temperature"], "N/A"),
			"wind_direction": stringOr(entry["wind_direction"], "N/A"),
			"wind_power":     stringOr(entry["wind_power"], "N/A"),
		})
	}
	return forecasts
}

func stringOr(v any, fallback string) string {
	switch s := v.(type) {
	case string:
		if s != "" {
			return s
		}
	case float64:
		return fmt.Sprintf("%g", s)
	}
	return fallback
}
