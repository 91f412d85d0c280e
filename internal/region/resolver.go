// Package region maps a free-text location to a regional prompt fragment.
// Regional flavor is a premium feature and can be disabled per request with
// neutral mode.
package region

import (
	"fmt"
	"strings"

	"github.com/mensajemagico/backend/internal/types"
)

type definition struct {
	id       string
	keywords []string
	template string
}

// Ordered list: more specific regions must precede broader country-level
// fallbacks sharing keywords (e.g. "cartagena" before "colombia").
var definitions = []definition{
	{
		id:       "costa_caribe_col",
		keywords: []string{"cartagena", "barranquilla", "santa marta", "valledupar", "atlántico", "bolívar", "magdalena", "cesar"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Inyecta la esencia, el carisma y el ritmo local de la Costa Caribe en el mensaje (calidez, alegría, espontaneidad), pero manteniendo la elegancia y sofisticación del plan Premium.",
	},
	{
		id:       "paisa_col",
		keywords: []string{"medellín", "medellin", "antioquia", "pereira", "manizales", "armenia", "risaralda", "caldas", "quindío"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Inyecta la amabilidad paisa/cafetera, la cercanía y el optimismo característico de la región (ej. calidez, trato cercano, uso sutil de 'vos' si aplica), manteniendo la elegancia Premium.",
	},
	{
		id:       "bogota_col",
		keywords: []string{"bogotá", "bogota", "cundinamarca"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Inyecta la cortesía, la formalidad cálida y el estilo urbano/sofisticado de la capital (cultura rola/cachaca), manteniendo la elegancia Premium.",
	},
	{
		id:       "colombia_general",
		keywords: []string{"colombia"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Usa un tono cálido y amable, característico de Colombia, manteniendo la sofisticación Premium.",
	},
	{
		id:       "argentina_rioplatense",
		keywords: []string{"argentina", "buenos aires", "caba", "rosario", "córdoba", "mendoza", "la plata"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Usa el 'voseo' (vos) y un tono argentino cálido, expresivo y con carácter. Evita el 'tú'. Mantén la elegancia y sofisticación Premium.",
	},
	{
		id:       "mexico_cdmx",
		keywords: []string{"ciudad de méxico", "cdmx", "df"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Inyecta el estilo chilango educado y cálido, con la cortesía característica de la capital, manteniendo un tono sofisticado y Premium.",
	},
	{
		id:       "mexico_general",
		keywords: []string{"méxico", "mexico", "guadalajara", "monterrey", "puebla", "cancún"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Inyecta la calidez, cortesía y hospitalidad mexicana (ej. amabilidad, 'tú' cercano), manteniendo un tono sofisticado y Premium.",
	},
	{
		id:       "chile_general",
		keywords: []string{"chile", "santiago", "valparaíso", "concepción"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Usa un tono cercano y cálido propio de Chile, evitando modismos excesivamente informales (slang), pero manteniendo la identidad local y la elegancia Premium.",
	},
	{
		id:       "peru_general",
		keywords: []string{"perú", "peru", "lima", "cusco", "arequipa"},
		template: "[MODO REGIONAL ACTIVO]: El usuario está en %s. Usa un tono amable, respetuoso, suave y lírico, característico de Perú. Mantén la sofisticación Premium.",
	},
}

// GetRegionalBoost returns the prompt fragment for the user's region, or ""
// when the tier is not premium, neutral mode is on, the location is empty, or
// no region matches. Matching is a lower-cased substring scan; first match wins.
func GetRegionalBoost(location string, level types.PlanLevel, neutralMode bool) string {
	if level != types.PlanPremium || location == "" || neutralMode {
		return ""
	}

	normalized := strings.ToLower(location)
	for _, def := range definitions {
		for _, keyword := range def.keywords {
			if strings.Contains(normalized, keyword) {
				return fmt.Sprintf(def.template, location)
			}
		}
	}
	return ""
}
