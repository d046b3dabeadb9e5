package domain

// Prompt is a composed text-generation request. Instruction carries the
// persona and formatting rules; Request carries the user-derived content.
type Prompt struct {
	Instruction string
	Request     string
}

// Text flattens the prompt for providers without a separate system channel.
func (p Prompt) Text() string {
	return p.Instruction + "\n\n---\n\n" + p.Request
}

// Messages renders the prompt as a system/user chat pair.
func (p Prompt) Messages() []ChatMessage {
	return []ChatMessage{
		{Role: "system", Content: p.Instruction},
		{Role: "user", Content: p.Request},
	}
}

// Generation is a text provider's answer. FinishReason holds the provider's
// raw signal; see NormalizeFinishReason.
type Generation struct {
	Text         string
	FinishReason any
}
