package prompt

import (
	"strings"
	"testing"

	"github.com/mensajemagico/backend/internal/plan"
	"github.com/mensajemagico/backend/internal/types"
)

func baseInput(t *testing.T, level types.PlanLevel) Input {
	t.Helper()
	cfg, err := plan.GetConfig(level)
	if err != nil {
		t.Fatalf("plan config: %v", err)
	}
	return Input{
		Plan: cfg,
		Request: types.GenerationRequest{
			PlanLevel: level,
			Occasion:  "amor",
			Tone:      "romántico",
		},
		Memory:                    types.RelationalContext{RelationalHealth: 5},
		SupportsSystemInstruction: true,
	}
}

func TestComposeIntentionBlock(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)
	in.Request.Intention = "inquiry"

	p := Compose(in)
	if !strings.Contains(p.SystemInstruction, "Indagación") {
		t.Fatal("expected inquiry objective in system instruction")
	}

	in.Request.Intention = "desconocida"
	p = Compose(in)
	if strings.Contains(p.SystemInstruction, "OBJETIVO PSICOLÓGICO") {
		t.Fatal("unknown intention must inject nothing")
	}
}

func TestComposeEnergyMirrorBands(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)

	cases := []struct {
		received string
		want     string
	}{
		{"Hola", "ultra breve"},
		{strings.Repeat("a", 40), "un párrafo corto"},
		{strings.Repeat("a", 100), "Respuesta media"},
		{strings.Repeat("a", 200), "Respuesta amplia"},
	}
	for _, tc := range cases {
		in.Request.ReceivedText = tc.received
		p := Compose(in)
		if !strings.Contains(p.SystemInstruction, tc.want) {
			t.Fatalf("received text of %d runes: expected %q band", len([]rune(tc.received)), tc.want)
		}
	}

	in.Request.ReceivedText = ""
	if p := Compose(in); strings.Contains(p.SystemInstruction, "ESPEJO DE ENERGÍA") {
		t.Fatal("no received text, no mirroring rule")
	}
}

func TestComposeEnergyMirrorSuppressedForDirectTone(t *testing.T) {
	in := baseInput(t, types.PlanPremium)
	in.Request.Tone = "directo"
	in.Request.ReceivedText = "Hola, ¿qué tal todo por allá?"

	p := Compose(in)
	if strings.Contains(p.SystemInstruction, "ESPEJO DE ENERGÍA") {
		t.Fatal("direct tone already bans elaboration; mirroring must be suppressed")
	}
	if !strings.Contains(p.SystemInstruction, "TONO DIRECTO") {
		t.Fatal("direct tone contract missing")
	}
}

func TestComposeTemporalCoherence(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)
	in.Request.GreetingMoment = "late_night"

	p := Compose(in)
	if !strings.Contains(p.SystemInstruction, "Sé que es tarde") {
		t.Fatal("expected full late-night greeting rule")
	}

	in.Request.Tone = "directo"
	p = Compose(in)
	if !strings.Contains(p.SystemInstruction, "Muy tarde") {
		t.Fatal("direct tone must shorten, not omit, the greeting rule")
	}
	if strings.Contains(p.SystemInstruction, "Sé que es tarde") {
		t.Fatal("direct tone must not keep the long greeting rule")
	}
}

func TestComposeToneTableDriven(t *testing.T) {
	in := baseInput(t, types.PlanPremium)
	for tone, marker := range map[string]string{
		"romántico": "media naranja",
		"divertido": "TONO DIVERTIDO",
		"corto":     "Máximo dos frases",
		"sutil":     "Insinúa",
	} {
		in.Request.Tone = tone
		if p := Compose(in); !strings.Contains(p.SystemInstruction, marker) {
			t.Fatalf("tone %s: expected marker %q", tone, marker)
		}
	}
}

func TestComposeAntiHallucinationGuardrails(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)

	p := Compose(in)
	if !strings.Contains(p.SystemInstruction, "PROHIBICIÓN GEOGRÁFICA") {
		t.Fatal("geographic prohibition must always be present")
	}
	if !strings.Contains(p.SystemInstruction, "SIN HISTORIA INVENTADA") {
		t.Fatal("no prior style: inventing shared history must be forbidden")
	}

	in.Memory.LastUserStyle = "Hola chiquis 😘"
	p = Compose(in)
	if strings.Contains(p.SystemInstruction, "SIN HISTORIA INVENTADA") {
		t.Fatal("with a style sample the no-history rule does not apply")
	}

	in.AvoidTopics = []string{"playa", "cumpleaños"}
	p = Compose(in)
	if !strings.Contains(p.SystemInstruction, "playa, cumpleaños") {
		t.Fatal("avoid-topics list must be injected verbatim")
	}
}

func TestComposeLexiconInjection(t *testing.T) {
	in := baseInput(t, types.PlanPremium)
	in.Memory.PreferredLexicon = []string{"chiquis", "bollito"}

	p := Compose(in)
	if !strings.Contains(p.SystemInstruction, "chiquis, bollito") || !strings.Contains(p.SystemInstruction, "al menos una") {
		t.Fatal("expected unconditional lexicon instruction")
	}

	in.Request.Tone = "corto"
	p = Compose(in)
	if !strings.Contains(p.SystemInstruction, "SOLO si cabe") {
		t.Fatal("terse tones make lexicon usage conditional")
	}
}

func TestComposePlanTierSplit(t *testing.T) {
	free := Compose(baseInput(t, types.PlanFreemium))
	if !strings.Contains(free.SystemInstruction, "GUARDIAN_INSIGHT") {
		t.Fatal("free tier must request the insight aside")
	}

	premium := Compose(baseInput(t, types.PlanPremium))
	if !strings.Contains(premium.SystemInstruction, "ADN Regional Sofisticado") {
		t.Fatal("premium tier must request regional flavor and rationale")
	}
	if strings.Contains(premium.SystemInstruction, "GUARDIAN_INSIGHT") {
		t.Fatal("premium tier must not get the guest insight block")
	}
}

func TestComposeTemperatureSelection(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)

	if p := Compose(in); p.Temperature != 0.75 {
		t.Fatalf("expected plan base temperature, got %v", p.Temperature)
	}

	in.Request.CreativityLevel = "low"
	if p := Compose(in); p.Temperature != 0.2 {
		t.Fatalf("low hint: got %v", p.Temperature)
	}

	in.Request.CreativityLevel = "high"
	if p := Compose(in); p.Temperature != 0.6 {
		t.Fatalf("high hint: got %v", p.Temperature)
	}

	in.Request.CreativityLevel = "imitation"
	if p := Compose(in); p.Temperature != 0.35 {
		t.Fatalf("imitation hint: got %v", p.Temperature)
	}

	in.Request.Tone = "directo"
	in.Request.CreativityLevel = "high"
	if p := Compose(in); p.Temperature != 0.2 {
		t.Fatalf("direct tone must force low temperature, got %v", p.Temperature)
	}
}

func TestComposeSingleChannelConcatenation(t *testing.T) {
	in := baseInput(t, types.PlanFreemium)
	in.SupportsSystemInstruction = false

	p := Compose(in)
	if p.SystemInstruction != "" {
		t.Fatal("single-channel models must not get a separate system instruction")
	}
	if !strings.Contains(p.UserPrompt, "[SYSTEM_RULES]") || !strings.Contains(p.UserPrompt, "[USER_REQUEST]") {
		t.Fatal("expected delimited concatenation")
	}
	if !strings.Contains(p.UserPrompt, "### INPUT DATA") {
		t.Fatal("user data must survive the merge")
	}
}

func TestComposeRegionalBoostOnlyForPremium(t *testing.T) {
	in := baseInput(t, types.PlanPremium)
	in.Request.Region = "Medellín"

	if p := Compose(in); !strings.Contains(p.UserPrompt, "MODO REGIONAL ACTIVO") {
		t.Fatal("premium with matching region must carry the boost")
	}

	in.Request.NeutralMode = true
	if p := Compose(in); strings.Contains(p.UserPrompt, "MODO REGIONAL ACTIVO") {
		t.Fatal("neutral mode must strip the boost")
	}

	freeIn := baseInput(t, types.PlanFreemium)
	freeIn.Request.Region = "Medellín"
	if p := Compose(freeIn); strings.Contains(p.UserPrompt, "MODO REGIONAL ACTIVO") {
		t.Fatal("regional flavor is premium-only")
	}
}
