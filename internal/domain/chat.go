package domain

// ChatMessage is the role/content pair sent to chat-completion style text
// providers.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
