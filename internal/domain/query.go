package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultCurrency is used when a query does not name a preferred currency.
const DefaultCurrency = "USD"

// TravelQuery is the validated, per-request description of a trip.
type TravelQuery struct {
	Destination       string
	Date              string
	Budget            string
	Style             string
	PreferredCurrency string
}

// Currency returns the preferred currency, falling back to DefaultCurrency.
func (q TravelQuery) Currency() string {
	c := strings.ToUpper(strings.TrimSpace(q.PreferredCurrency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of the caller-owned chat history.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// wireTurn accepts both the current {role, text} shape and the legacy
// {role, parts} shape where the assistant role was spelled "model".
type wireTurn struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Parts string `json:"parts"`
}

func (t *ConversationTurn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	role, err := ParseRole(w.Role)
	if err != nil {
		return err
	}
	text := w.Text
	if text == "" {
		text = w.Parts
	}
	t.Role = role
	t.Text = text
	return nil
}

// ParseRole maps a wire role name onto Role.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return RoleUser, nil
	case "assistant", "model":
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("domain: unknown conversation role %q", raw)
	}
}
