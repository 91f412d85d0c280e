package prompt

// toneRule is one tone's stylistic contract. The table is the single source
// of truth for tone behavior: adding a tone never touches composer control
// flow.
type toneRule struct {
	// instruction is the full stylistic contract: required devices, forbidden
	// devices, anti-cliché constraints.
	instruction string
	// terse tones make lexicon usage conditional and suppress elaboration.
	terse bool
	// forbidsPoetic marks tones whose contract already bans elaboration, so
	// the energy-mirroring rule must not be injected on top of it.
	forbidsPoetic bool
	// forcedTemperature, when non-zero, overrides any creativity hint.
	forcedTemperature float64
}

var toneRules = map[string]toneRule{
	"romántico": {
		instruction: "TONO ROMÁNTICO: Emoción genuina y cercana. Usa imágenes sensoriales cotidianas (café, lluvia, la voz del otro). PROHIBIDO: 'mi media naranja', 'eres mi todo', corazones en cada frase y cualquier verso de tarjeta de regalo.",
	},
	"divertido": {
		instruction: "TONO DIVERTIDO: Humor ligero y complicidad. Usa ironía suave o una exageración juguetona. PROHIBIDO: chistes de almanaque, emojis en ráfaga y remates forzados tipo 'jajaja' al final de cada línea.",
	},
	"corto": {
		instruction: "TONO CORTO: Máximo dos frases. Cada palabra debe ganarse su lugar. PROHIBIDO: introducciones, despedidas largas y cualquier adorno que no aporte significado.",
		terse:       true,
	},
	"formal": {
		instruction: "TONO FORMAL: Cortesía impecable sin rigidez. Trato de 'usted' salvo que el estilo aprendido indique lo contrario. PROHIBIDO: jerga, diminutivos y plantillas de oficina ('por medio de la presente').",
	},
	"profundo": {
		instruction: "TONO PROFUNDO: Reflexión honesta sobre el vínculo. Una sola idea desarrollada con calma. PROHIBIDO: frases de póster motivacional, citas célebres y filosofía de taza de café.",
	},
	"directo": {
		instruction:       "TONO DIRECTO: Di lo esencial sin rodeos ni elaboración poética. Frases cortas, verbos concretos. PROHIBIDO: metáforas, preámbulos y cualquier floritura.",
		terse:             true,
		forbidsPoetic:     true,
		forcedTemperature: 0.2,
	},
	"sutil": {
		instruction: "TONO SUTIL: Insinúa, no declares. Deja que la intención se lea entre líneas. PROHIBIDO: peticiones explícitas, presión y subrayar el mensaje con explicaciones.",
	},
}

// intentionObjectives maps the closed intention enum to its behavioral
// objective. Unknown intentions inject nothing.
var intentionObjectives = map[string]string{
	"low_effort": "OBJETIVO PSICOLÓGICO: BAJO ESFUERZO (Solo Cariño). Tu meta es mantener el vínculo con calidez pero sin generar carga cognitiva. No hagas preguntas que obliguen a responder. Sé afectuoso pero ligero.",
	"inquiry":    "OBJETIVO PSICOLÓGICO: CONECTAR (Indagación). Tu meta es abrir la conversación. Haz una pregunta interesante o muestra curiosidad genuina sobre su vida para incentivar una respuesta.",
	"resolutive": "OBJETIVO PSICOLÓGICO: RESOLVER. Tu meta es cerrar un plan o tomar una decisión. Sé directo, propón opciones claras (A o B) y evita la ambigüedad.",
	"action":     "OBJETIVO PSICOLÓGICO: IMPULSAR (Acción). Tu meta es lograr que la otra persona haga algo. Usa verbos imperativos suaves, sé persuasivo y transmite la importancia de la tarea de forma educada.",
}

// greetingRule is one greeting-moment register rule.
type greetingRule struct {
	full string
	// short replaces full for the direct tone, which shortens the mandated
	// greeting rather than omitting it.
	short string
}

var greetingRules = map[string]greetingRule{
	"dawn": {
		full:  "COHERENCIA TEMPORAL: Es muy temprano. Abre con un saludo de madrugada suave (ej. 'Buenos días antes que nadie') y un registro tranquilo, de arranque de día.",
		short: "COHERENCIA TEMPORAL: Madrugada. Saludo breve de buenos días, sin ceremonias.",
	},
	"afternoon": {
		full:  "COHERENCIA TEMPORAL: Es por la tarde. Usa un saludo de media jornada (ej. '¿Cómo va tu día?') con energía serena.",
		short: "COHERENCIA TEMPORAL: Tarde. Saludo mínimo de media jornada.",
	},
	"night": {
		full:  "COHERENCIA TEMPORAL: Es de noche. Abre con un registro de cierre de día, cálido y sin prisa (ej. 'Antes de que termine el día...').",
		short: "COHERENCIA TEMPORAL: Noche. Saludo corto de cierre de día.",
	},
	"late_night": {
		full:  "COHERENCIA TEMPORAL: Es tarde en la noche. Reconoce la hora con intimidad y bajo volumen (ej. 'Sé que es tarde, pero...'). Nada de energía diurna.",
		short: "COHERENCIA TEMPORAL: Muy tarde. Reconoce la hora en pocas palabras.",
	},
	"monday": {
		full:  "COHERENCIA TEMPORAL: Es lunes. Sugiere un arranque de semana: ánimo sin frases de calendario motivacional.",
		short: "COHERENCIA TEMPORAL: Lunes. Mención mínima del arranque de semana.",
	},
	"weekend": {
		full:  "COHERENCIA TEMPORAL: Es fin de semana. Registro relajado, de tiempo libre; sugiere disfrutar el descanso.",
		short: "COHERENCIA TEMPORAL: Fin de semana. Registro relajado, sin alargarse.",
	},
}
