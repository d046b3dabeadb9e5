package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type stringerReason string

func (s stringerReason) String() string { return string(s) }

func TestNormalizeFinishReason(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want FinishReason
	}{
		{name: "nil", raw: nil, want: FinishUnknown},
		{name: "enum passthrough", raw: FinishTruncated, want: FinishTruncated},
		{name: "enum unknown value", raw: FinishReason("weird"), want: FinishUnknown},
		{name: "code stop", raw: 1, want: FinishComplete},
		{name: "code max tokens int32", raw: int32(2), want: FinishTruncated},
		{name: "code safety", raw: int64(3), want: FinishFiltered},
		{name: "code recitation", raw: 4, want: FinishFiltered},
		{name: "code other", raw: 5, want: FinishUnknown},
		{name: "code unspecified", raw: 0, want: FinishUnknown},
		{name: "string STOP", raw: "STOP", want: FinishComplete},
		{name: "string openai stop", raw: "stop", want: FinishComplete},
		{name: "string openai length", raw: "length", want: FinishTruncated},
		{name: "string MAX_TOKENS", raw: "MAX_TOKENS", want: FinishTruncated},
		{name: "string content_filter", raw: "content_filter", want: FinishFiltered},
		{name: "string empty", raw: "  ", want: FinishUnknown},
		{name: "string garbage", raw: "banana", want: FinishUnknown},
		{name: "stringer", raw: stringerReason("FinishReasonSafety"), want: FinishFiltered},
		{name: "unsupported type", raw: 3.5, want: FinishUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, NormalizeFinishReason(tc.raw))
		})
	}
}

func TestConversationTurn_DecodesBothShapes(t *testing.T) {
	var turns []ConversationTurn
	err := json.Unmarshal([]byte(`[
		{"role":"user","text":"hola"},
		{"role":"model","parts":"¡Hola! ¿A dónde vamos?"},
		{"role":"Assistant","text":"claro"}
	]`), &turns)
	require.NoError(t, err)
	require.Equal(t, []ConversationTurn{
		{Role: RoleUser, Text: "hola"},
		{Role: RoleAssistant, Text: "¡Hola! ¿A dónde vamos?"},
		{Role: RoleAssistant, Text: "claro"},
	}, turns)
}

func TestConversationTurn_RejectsUnknownRole(t *testing.T) {
	var turn ConversationTurn
	err := json.Unmarshal([]byte(`{"role":"system","text":"x"}`), &turn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown conversation role")
}

func TestTravelQuery_Currency(t *testing.T) {
	require.Equal(t, "USD", TravelQuery{}.Currency())
	require.Equal(t, "EUR", TravelQuery{PreferredCurrency: " eur "}.Currency())
}
