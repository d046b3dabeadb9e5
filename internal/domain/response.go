package domain

import (
	"fmt"
	"strings"
)

// FinishReason is the provider-independent reason text generation stopped.
type FinishReason string

const (
	FinishComplete  FinishReason = "Complete"
	FinishTruncated FinishReason = "Truncated"
	FinishFiltered  FinishReason = "Filtered"
	FinishUnknown   FinishReason = "Unknown"
)

// NormalizeFinishReason maps whatever a provider reports (an enum value, a
// numeric code or a string) onto one of the four FinishReason values.
// Numeric codes follow the Gemini API enumeration.
func NormalizeFinishReason(raw any) FinishReason {
	switch v := raw.(type) {
	case nil:
		return FinishUnknown
	case FinishReason:
		switch v {
		case FinishComplete, FinishTruncated, FinishFiltered:
			return v
		}
		return FinishUnknown
	case int:
		return finishFromCode(int64(v))
	case int32:
		return finishFromCode(int64(v))
	case int64:
		return finishFromCode(v)
	case string:
		return finishFromString(v)
	case fmt.Stringer:
		return finishFromString(v.String())
	default:
		return FinishUnknown
	}
}

func finishFromCode(code int64) FinishReason {
	switch code {
	case 1:
		return FinishComplete
	case 2:
		return FinishTruncated
	case 3, 4, 6, 7, 8:
		return FinishFiltered
	default:
		return FinishUnknown
	}
}

func finishFromString(s string) FinishReason {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FinishUnknown
	}
	for _, marker := range []string{"max_tokens", "maxtokens", "length", "truncat"} {
		if strings.Contains(s, marker) {
			return FinishTruncated
		}
	}
	for _, marker := range []string{"safety", "content_filter", "recitation", "blocklist", "prohibited", "spii"} {
		if strings.Contains(s, marker) {
			return FinishFiltered
		}
	}
	for _, marker := range []string{"stop", "complete", "end_turn"} {
		if strings.Contains(s, marker) {
			return FinishComplete
		}
	}
	return FinishUnknown
}

// Weather is the current conditions reported by the weather provider.
type Weather struct {
	TemperatureC float64 `json:"temperatureC"`
	FeelsLikeC   float64 `json:"feelsLikeC"`
	Condition    string  `json:"condition"`
	LocalTime    string  `json:"-"`
}

// Info carries supplementary facts derived from the upstream calls.
type Info struct {
	LocalTime string `json:"localTime"`
}

// AggregatedResponse is the merged result of one plan or chat request.
type AggregatedResponse struct {
	GeneratedText string       `json:"generatedText"`
	FinishReason  FinishReason `json:"finishReason"`
	Weather       *Weather     `json:"weather"`
	Images        []string     `json:"images"`
	Info          *Info        `json:"info"`
}
