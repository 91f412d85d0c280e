// Package prompt assembles the layered system instruction and user prompt
// for a generation request. Compose is a pure function: every rule layer is
// derived from its inputs and independently testable.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/region"
	"github.com/mensajemagico/backend/internal/types"
)

// Input is everything Compose needs.
type Input struct {
	Plan    plan.Config
	Request types.GenerationRequest
	Memory  types.RelationalContext
	// AvoidTopics lists recently used subjects that must not repeat verbatim.
	AvoidTopics []string
	// SupportsSystemInstruction is the target model's capability flag. When
	// false, system and user prompts are concatenated with a delimiter.
	SupportsSystemInstruction bool
}

// Prompt is the composed call payload.
type Prompt struct {
	SystemInstruction string
	UserPrompt        string
	Temperature       float64
}

// Compose builds the final instruction layers, ordered roughly by priority:
// role, intention, naturalness guardrails, dynamic relational context,
// energy/temporal rules, tone contract, learned style, plan behavior split,
// constraints.
func Compose(in Input) Prompt {
	req := in.Request
	tone := toneRules[req.Tone]

	var sb strings.Builder

	sb.WriteString("### ROLE\n")
	sb.WriteString("Eres el \"Guardián de Sentimiento\", un motor de inteligencia emocional avanzada. Tu misión es transformar recordatorios fríos en puentes humanos genuinos. No eres un redactor; eres un facilitador de vínculos.\n")

	if objective, ok := intentionObjectives[req.Intention]; ok {
		sb.WriteString("\n### INSTRUCCIÓN DEL GUARDIÁN (PRIORIDAD ALTA)\n")
		sb.WriteString(objective)
		sb.WriteString("\n")
	}

	writeGuardrails(&sb, in)
	writeDynamicContext(&sb, in.Memory)

	if rule := energyMirror(req.ReceivedText, tone); rule != "" {
		sb.WriteString("\n")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	if rule := temporalRule(req.GreetingMoment, tone); rule != "" {
		sb.WriteString("\n")
		sb.WriteString(rule)
		sb.WriteString("\n")
	}
	if tone.instruction != "" {
		sb.WriteString("\n### CONTRATO DE TONO\n")
		sb.WriteString(tone.instruction)
		sb.WriteString("\n")
	}

	writeLearnedStyle(&sb, req, in.Memory, tone)
	writePlanModes(&sb, req.PlanLevel)
	writeConstraints(&sb, in)

	system := strings.TrimSpace(sb.String())
	user := userPrompt(in)
	temperature := selectTemperature(in.Plan.AI.Temperature, req.CreativityLevel, tone)

	if !in.SupportsSystemInstruction {
		// Single-channel families get one text block with a clear delimiter.
		merged := fmt.Sprintf("[SYSTEM_RULES]\n%s\n\n[USER_REQUEST]\n%s", system, user)
		return Prompt{UserPrompt: merged, Temperature: temperature}
	}
	return Prompt{SystemInstruction: system, UserPrompt: user, Temperature: temperature}
}

func writeGuardrails(sb *strings.Builder, in Input) {
	sb.WriteString("\n### REGLAS DE ORO DE NATURALIDAD (CRÍTICO)\n")
	sb.WriteString("1. **PROHIBICIÓN GEOGRÁFICA:** Queda estrictamente PROHIBIDO mencionar nombres de ciudades, monumentos, sitios turísticos o clichés de postales (ej. NO menciones Murallas, La Vitrola, coches de caballos, Getsemaní, Monserrate, etc.).\n")
	sb.WriteString("2. **IDENTIDAD SENSORIAL:** Expresa la región a través del clima (brisa, calorcito, frío), el ritmo de vida o jerga sutil y orgánica.\n")
	sb.WriteString("3. **FILTRO ANTI-ROBOT:** Si el mensaje parece un folleto de viajes o una escena de telenovela, descártalo y reintenta. Debe sonar como un mensaje de WhatsApp real.\n")
	if in.Memory.LastUserStyle == "" {
		sb.WriteString("4. **SIN HISTORIA INVENTADA:** No hay muestras de conversaciones previas. PROHIBIDO inventar recuerdos, anécdotas compartidas o promesas pasadas.\n")
	}
	if len(in.AvoidTopics) > 0 {
		sb.WriteString(fmt.Sprintf("5. **ANTI-REPETICIÓN (MEMORIA A CORTO PLAZO):** El usuario ya ha mencionado recientemente: \"%s\". EVITA usar estas palabras o conceptos específicos en este nuevo mensaje para mantener la frescura.\n", strings.Join(in.AvoidTopics, ", ")))
	}
}

func writeDynamicContext(sb *strings.Builder, mem types.RelationalContext) {
	sb.WriteString("\n### CONTEXTO DINÁMICO\n")
	sb.WriteString(fmt.Sprintf("- **Salud Relacional:** %.1f/10.\n", mem.RelationalHealth))
	sb.WriteString("  * Si es < 4: Tono de \"Reparación\". Sé vulnerable, evita el reclamo y no presiones.\n")
	sb.WriteString("  * Si es > 8: Tono de \"Complicidad\". Usa humor interno y confianza alta.\n")
	sb.WriteString(fmt.Sprintf("- **SnoozeCount:** %d. Si es > 1, admite la demora con honestidad (ej. \"Me embolaté, pero aquí estoy\").\n", mem.SnoozeCount))
}

// Length bands of the received text, mapped to a required reply brevity.
func energyMirror(receivedText string, tone toneRule) string {
	if receivedText == "" || tone.forbidsPoetic {
		// The direct contract already bans elaboration; stacking a brevity
		// rule on top would contradict it.
		return ""
	}

	var level string
	switch n := len([]rune(receivedText)); {
	case n < 25:
		level = "Respuesta ultra breve: una o dos frases, misma energía casual."
	case n < 60:
		level = "Respuesta breve: un párrafo corto, sin extenderte más que el mensaje recibido."
	case n < 150:
		level = "Respuesta media: puedes desarrollar una idea, manteniendo proporción con lo recibido."
	default:
		level = "Respuesta amplia permitida: el mensaje recibido es largo; puedes corresponder con profundidad."
	}
	return "### ESPEJO DE ENERGÍA\nEl mensaje recibido marca el nivel de energía. " + level
}

func temporalRule(moment string, tone toneRule) string {
	rule, ok := greetingRules[moment]
	if !ok {
		return ""
	}
	if tone.forbidsPoetic {
		return "### " + rule.short
	}
	return "### " + rule.full
}

func writeLearnedStyle(sb *strings.Builder, req types.GenerationRequest, mem types.RelationalContext, tone toneRule) {
	sb.WriteString("\n### HISTORIAL DE EDICIÓN DEL USUARIO\n")
	gender := req.GrammaticalGender
	if gender == "" {
		gender = "neutral"
	}
	sb.WriteString(fmt.Sprintf("- **Género Gramatical del Usuario:** %s. Usa esto para la concordancia (ej. 'cansado' vs 'cansada'). No influye en la personalidad.\n", gender))

	if mem.LastUserStyle != "" {
		sb.WriteString(fmt.Sprintf("Estilo preferido del usuario para este contacto: \"%s\". IMITA este estilo (palabras, longitud, uso de emojis).\n", mem.LastUserStyle))
	} else {
		sb.WriteString("No hay datos de estilo previos.\n")
	}

	if len(mem.PreferredLexicon) > 0 {
		if tone.terse {
			sb.WriteString(fmt.Sprintf("ADN Léxico (Palabras clave del usuario): %s. Usa alguna SOLO si cabe dentro de la restricción de brevedad.\n", strings.Join(mem.PreferredLexicon, ", ")))
		} else {
			sb.WriteString(fmt.Sprintf("ADN Léxico (Palabras clave del usuario): %s. Usa al menos una si encaja naturalmente en el mensaje.\n", strings.Join(mem.PreferredLexicon, ", ")))
		}
	}
}

// The tier split is a business-model requirement, not cosmetic.
func writePlanModes(sb *strings.Builder, level types.PlanLevel) {
	sb.WriteString("\n### MODOS DE OPERACIÓN SEGÚN PLAN\n")
	if level == types.PlanPremium {
		sb.WriteString("- **PLAN PREMIUM:** 1. **ADN Regional Sofisticado:** Jerga local elegante y fluida.\n")
		sb.WriteString("  2. **Estrategia Detallista:** Sugiere un plan local cotidiano (ej. \"ir por algo frío\", \"caminar cuando baje el sol\").\n")
		sb.WriteString("  3. **Análisis del Guardián:** Explica brevemente la psicología detrás del tono elegido.\n")
		return
	}
	sb.WriteString("- **PLAN GUEST/FREEMIUM:** Mensaje breve (max 2 párrafos) + un \"GUARDIAN_INSIGHT\" (un consejo psicológico breve sobre por qué este mensaje ayuda a la relación).\n")
}

func writeConstraints(sb *strings.Builder, in Input) {
	style := in.Plan.AI.PromptStyle
	if style == "" {
		style = "Conversacional, humano y cálido."
	}
	length := in.Plan.AI.LengthInstruction
	if length == "" {
		length = "Breve, directo al punto."
	}

	sb.WriteString("\n### CONSTRAINTS\n")
	sb.WriteString(fmt.Sprintf("- Estilo: %s\n", style))
	sb.WriteString(fmt.Sprintf("- Extensión: %s\n", length))
	sb.WriteString("- Límite: 500 tokens. No uses listas numeradas en el mensaje final.\n")
	sb.WriteString(fmt.Sprintf("- DINÁMICA DE SALUDO: El saludo debe ser el espejo de la Salud Relacional (%.1f/10). Prohibido usar saludos genéricos si la salud es extrema (muy baja o muy alta). Ajusta el nivel de confianza desde la primera palabra.\n", in.Memory.RelationalHealth))
}

func userPrompt(in Input) string {
	req := in.Request
	boost := region.GetRegionalBoost(req.Region, req.PlanLevel, req.NeutralMode)

	orNA := func(v string) string {
		if v == "" {
			return "N/A"
		}
		return v
	}

	var sb strings.Builder
	sb.WriteString("### INPUT DATA\n")
	sb.WriteString(fmt.Sprintf("- UserPlan: %s\n", strings.ToUpper(string(req.PlanLevel))))
	sb.WriteString(fmt.Sprintf("- RelationalHealth: %.1f/10\n", in.Memory.RelationalHealth))
	sb.WriteString(fmt.Sprintf("- Region: %s\n", orDefaultStr(req.Region, "Desconocida")))
	sb.WriteString(fmt.Sprintf("- Occasion: %s\n", req.Occasion))
	sb.WriteString(fmt.Sprintf("- Relationship: %s\n", orDefaultStr(req.Relationship, "General")))
	sb.WriteString(fmt.Sprintf("- Tone: %s\n", req.Tone))
	sb.WriteString(fmt.Sprintf("- Intention: %s\n", orNA(req.Intention)))
	sb.WriteString(fmt.Sprintf("- Context: %s\n", orDefaultStr(req.ContextWords, "Ninguno")))
	sb.WriteString(fmt.Sprintf("- ReceivedText: %s\n", orNA(req.ReceivedText)))
	if boost != "" {
		sb.WriteString(fmt.Sprintf("- RegionalContext: %s\n", boost))
	}
	if req.FormatInstruction != "" {
		sb.WriteString("\n")
		sb.WriteString(req.FormatInstruction)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// Creativity hints override the plan's base temperature; the direct tone
// forces a low temperature regardless of hint.
func selectTemperature(base float64, creativity string, tone toneRule) float64 {
	if tone.forcedTemperature > 0 {
		return tone.forcedTemperature
	}
	switch creativity {
	case "low":
		return 0.2
	case "high":
		return 0.6
	case "imitation":
		// Fidelity to the learned style needs restraint, not creativity.
		return 0.35
	}
	if base <= 0 {
		return 0.7
	}
	return base
}

func orDefaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
