package study

import (
	"sort"

	"github.com/google/uuid"

	"usersim/pkg/types"
)

// personaTemplate is one entry in the built-in persona catalogue.
type personaTemplate struct {
	name       string
	attributes map[string]string
}

// The catalogue mirrors the archetypes the simulator narrates. Attributes
// label output only; the scheduler treats every persona identically.
var personaTemplates = map[string]personaTemplate{
	"power_user": {
		name: "Priya the Power User",
		attributes: map[string]string{
			"tech_savvy": "high",
			"patience":   "low",
			"device":     "desktop",
		},
	},
	"newcomer": {
		name: "Noah the Newcomer",
		attributes: map[string]string{
			"tech_savvy": "low",
			"patience":   "high",
			"device":     "mobile",
		},
	},
	"skeptic": {
		name: "Sana the Skeptic",
		attributes: map[string]string{
			"tech_savvy": "medium",
			"patience":   "medium",
			"device":     "desktop",
		},
	},
	"busy_parent": {
		name: "Blake the Busy Parent",
		attributes: map[string]string{
			"tech_savvy": "medium",
			"patience":   "low",
			"device":     "mobile",
		},
	},
	"careful_reader": {
		name: "Cora the Careful Reader",
		attributes: map[string]string{
			"tech_savvy": "low",
			"patience":   "high",
			"device":     "tablet",
		},
	},
}

// ResolvePersona instantiates a persona from a template name.
func ResolvePersona(template string) (*types.Persona, error) {
	tpl, ok := personaTemplates[template]
	if !ok {
		return nil, ErrUnknownPersona
	}

	// Copy the attribute map so studies never share mutable state.
	attrs := make(map[string]string, len(tpl.attributes))
	for k, v := range tpl.attributes {
		attrs[k] = v
	}

	return &types.Persona{
		ID:         uuid.New().String(),
		Template:   template,
		Name:       tpl.name,
		Attributes: attrs,
	}, nil
}

// TemplateNames lists the available persona templates in stable order.
func TemplateNames() []string {
	names := make([]string, 0, len(personaTemplates))
	for name := range personaTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
