package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/llm"
)

// addressStandardizer turns the free-form user input into a canonical
// place name usable by the weather lookup.
func (e *Engine) addressStandardizer(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "address_standardization", "正在进行地址标准化..."); err != nil {
		return err
	}

	query := st.GetString(KeySysQuery)
	if strings.TrimSpace(query) == "" {
		st[KeyStandardizedAddress] = ""
		return em.Error(ctx, "用户输入为空，无法进行地址标准化。")
	}

	if err := em.Message(ctx, "正在提取并标准化地址:"); err != nil {
		return err
	}
	address := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        query,
		SystemPrompt: addressStandardizationPrompt,
		Temperature:  0.1,
		ModelName:    st.GetString(KeyModelName),
	}) {
		address += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	if err := em.Message(ctx, "\n"); err != nil {
		return err
	}

	st[KeyStandardizedAddress] = strings.TrimSpace(address)
	return em.NodeFinished(ctx, "address_standardization", "地址标准化完成")
}

// weatherTool fetches live conditions for the standardized address. A
// failed lookup leaves weather_data empty so routing can fall back.
func (e *Engine) weatherTool(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "weather_tool", "正在查询天气信息..."); err != nil {
		return err
	}

	location := st.GetString(KeyStandardizedAddress)
	if strings.TrimSpace(location) == "" {
		st[KeyWeatherData] = map[string]any{}
		return em.ErrorWith(ctx, "地址信息为空，无法查询天气。", map[string]any{"error_type": "location"})
	}

	weather := e.deps.Weather.Get(ctx, location)
	st[KeyWeatherData] = weather
	if len(weather) == 0 {
		if err := em.Message(ctx, fmt.Sprintf("未能查询到 '%s' 的天气信息。\n", location)); err != nil {
			return err
		}
	}

	return em.NodeFinished(ctx, "weather_tool", "天气查询完成")
}

// flightAnalyzer streams the flight-impact report for the fetched weather.
func (e *Engine) flightAnalyzer(ctx context.Context, st graph.State, em *graph.Emitter) error {
	if err := em.NodeStarted(ctx, "flight_analysis", "正在分析天气对飞行的影响..."); err != nil {
		return err
	}

	location := st.GetString(KeyStandardizedAddress)
	weatherJSON, _ := json.Marshal(st.GetMap(KeyWeatherData))

	finalAnswer := ""
	for token := range e.deps.Generator.GenerateStream(ctx, llm.Request{
		Query:        "请分析如下天气对无人机飞行的影响：" + string(weatherJSON),
		SystemPrompt: fmt.Sprintf(flightStabilityAnalysisPrompt, location, weatherJSON),
		Temperature:  temperatureFromState(st),
		ModelName:    st.GetString(KeyModelName),
	}) {
		finalAnswer += token
		if err := em.Message(ctx, token); err != nil {
			return err
		}
	}
	st[KeyFinalAnswer] = finalAnswer

	return em.NodeFinishedWith(ctx, "flight_analysis", "飞行影响分析报告已生成",
		map[string]any{"result": finalAnswer})
}

// weatherFallback answers directly when no weather data could be fetched.
func (e *Engine) weatherFallback(ctx context.Context, st graph.State, em *graph.Emitter) error {
	location := st.GetString(KeyStandardizedAddress)
	if location == "" {
		location = "未知地点"
	}
	answer := fmt.Sprintf("未能查询到 '%s' 的天气信息，请更换地点或稍后重试。", location)
	st[KeyFinalAnswer] = answer
	return em.FinalMessage(ctx, answer)
}
