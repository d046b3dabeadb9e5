package usecase

import (
	"fmt"
	"strings"

	"travel-gateway/internal/domain"
)

type PromptMode int

const (
	ModeInitialPlan PromptMode = iota
	ModeFollowUp
)

const (
	minHistoryWindow     = 6
	maxHistoryWindow     = 10
	defaultHistoryWindow = minHistoryWindow
)

// PlanSections are the headings every initial plan must contain, in order.
var PlanSections = []string{
	"## 🏨 ALOJAMIENTO IDEAL",
	"## 🥘 GASTRONOMÍA IMPERDIBLE",
	"## 💎 LUGARES CLAVE",
	"## 💡 CONSEJOS DE ALEX",
	"## 💰 ESTIMACIÓN DE COSTOS",
}

// Composer builds deterministic prompts from validated inputs.
type Composer struct {
	baseCurrency  string
	historyWindow int
}

func NewComposer(baseCurrency string, historyWindow int) *Composer {
	baseCurrency = strings.ToUpper(strings.TrimSpace(baseCurrency))
	if baseCurrency == "" {
		baseCurrency = domain.DefaultCurrency
	}
	return &Composer{
		baseCurrency:  baseCurrency,
		historyWindow: clampHistoryWindow(historyWindow),
	}
}

func clampHistoryWindow(n int) int {
	switch {
	case n <= 0:
		return defaultHistoryWindow
	case n < minHistoryWindow:
		return minHistoryWindow
	case n > maxHistoryWindow:
		return maxHistoryWindow
	default:
		return n
	}
}

// HistoryWindow is the number of trailing turns a follow-up prompt includes.
func (c *Composer) HistoryWindow() int {
	return c.historyWindow
}

// ModeFor picks FollowUp only when there is history to continue from.
func ModeFor(history []domain.ConversationTurn) PromptMode {
	if len(history) == 0 {
		return ModeInitialPlan
	}
	return ModeFollowUp
}

// Compose renders q, and for ModeFollowUp the history suffix and message,
// into a Prompt. It has no side effects.
func (c *Composer) Compose(q domain.TravelQuery, mode PromptMode, history []domain.ConversationTurn, message string) domain.Prompt {
	if mode == ModeFollowUp {
		return domain.Prompt{
			Instruction: c.chatInstruction(q),
			Request:     c.followUpRequest(q, history, message),
		}
	}
	return domain.Prompt{
		Instruction: c.planInstruction(q),
		Request:     "Solicitud del usuario: " + planRequestSentence(q),
	}
}

func (c *Composer) planInstruction(q domain.TravelQuery) string {
	lines := []string{
		"Eres Alex, el consultor de viajes más experto y entusiasta del mundo.",
		"",
		"REGLAS DE ORO:",
		"1. RESPONDER ÚNICAMENTE EN ESPAÑOL. Todo el contenido debe estar en español.",
		"2. Tu respuesta SIEMPRE debe usar formato Markdown.",
		fmt.Sprintf("3. Comienza tu respuesta EXACTAMENTE con esta frase: %q", introSentence(q)),
		fmt.Sprintf("4. Tu respuesta DEBE tener EXACTAMENTE estas %d secciones, en este orden y con estos títulos:", len(PlanSections)),
		"",
	}
	for _, s := range PlanSections {
		lines = append(lines, s, "")
	}
	lines = append(lines,
		"5. Sé entusiasta, profesional y detallado en cada sección.",
		"6. Asegúrate de incluir TODAS las secciones en tu respuesta.",
		"",
		"MONEDA:",
		c.currencyRules(q),
	)
	return strings.Join(lines, "\n")
}

func (c *Composer) chatInstruction(q domain.TravelQuery) string {
	return strings.Join([]string{
		"Eres Alex, el consultor de viajes más experto y entusiasta del mundo.",
		"",
		"REGLAS DE ORO:",
		"1. RESPONDER ÚNICAMENTE EN ESPAÑOL. Todo el contenido debe estar en español.",
		"2. Usa formato Markdown para mejorar la legibilidad.",
		"3. Responde de manera NATURAL y CONVERSACIONAL. No fuerces estructuras rígidas.",
		"4. Si el usuario hace una pregunta específica, responde directamente a esa pregunta de forma clara y detallada.",
		"5. Solo usa las secciones estructuradas si el usuario pide explícitamente un plan completo.",
		"6. Mantén el contexto del viaje que el usuario está planificando.",
		"",
		"MONEDA:",
		c.currencyRules(q),
	}, "\n")
}

func introSentence(q domain.TravelQuery) string {
	return fmt.Sprintf("¡Hola! Soy Alex y preparé este plan de viaje a %s especialmente para ti.", normalizePromptInput(q.Destination))
}

func (c *Composer) currencyRules(q domain.TravelQuery) string {
	rules := fmt.Sprintf("Expresa todos los montos en %s con el código de moneda después de la cifra (por ejemplo: 120 %s).", c.baseCurrency, c.baseCurrency)
	preferred := q.Currency()
	if preferred == c.baseCurrency {
		return rules
	}
	return rules + " " + fmt.Sprintf(
		"El usuario prefiere %s: muestra primero el monto en %s y a continuación, entre paréntesis, una aproximación en %s (por ejemplo: 120 %s (≈ X %s)). Aclara que la conversión es aproximada.",
		preferred, c.baseCurrency, preferred, c.baseCurrency, preferred,
	)
}

// planRequestSentence joins the non-empty fields in a fixed order.
func planRequestSentence(q domain.TravelQuery) string {
	parts := []string{"Planifica un viaje a " + normalizePromptInput(q.Destination)}
	if v := normalizePromptInput(q.Date); v != "" {
		parts = append(parts, "para la fecha "+v)
	}
	if v := normalizePromptInput(q.Budget); v != "" {
		parts = append(parts, "con presupuesto "+v)
	}
	if v := normalizePromptInput(q.Style); v != "" {
		parts = append(parts, "y estilo "+v)
	}
	return strings.Join(parts, " ") + "."
}

func tripContext(q domain.TravelQuery) string {
	fields := []string{"Destino: " + normalizePromptInput(q.Destination)}
	if v := normalizePromptInput(q.Date); v != "" {
		fields = append(fields, "Fecha: "+v)
	}
	if v := normalizePromptInput(q.Budget); v != "" {
		fields = append(fields, "Presupuesto: "+v)
	}
	if v := normalizePromptInput(q.Style); v != "" {
		fields = append(fields, "Estilo: "+v)
	}
	return "Contexto del viaje: " + strings.Join(fields, ", ")
}

func (c *Composer) followUpRequest(q domain.TravelQuery, history []domain.ConversationTurn, message string) string {
	var b strings.Builder
	b.WriteString(tripContext(q))
	b.WriteString("\n\n--- Historial de Conversación ---\n\n")
	for _, turn := range lastTurns(history, c.historyWindow) {
		b.WriteString(roleLabel(turn.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(turn.Text))
		b.WriteString("\n\n")
	}
	b.WriteString("---\n\nUsuario pregunta ahora: ")
	b.WriteString(strings.TrimSpace(message))
	return b.String()
}

func roleLabel(r domain.Role) string {
	if r == domain.RoleUser {
		return "Usuario"
	}
	return "Alex"
}

func lastTurns(history []domain.ConversationTurn, n int) []domain.ConversationTurn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
