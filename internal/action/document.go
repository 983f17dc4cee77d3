package action

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document is the on-disk layout of an actions file. The same layout is accepted as YAML or JSON.
type Document struct {
	ResponseModes   map[string]Mode `yaml:"response_modes" json:"response_modes"`
	DefaultSettings *Settings       `yaml:"default_settings,omitempty" json:"default_settings,omitempty"`
}

// Mode is one entry of Document.ResponseModes, keyed by action id.
type Mode struct {
	Name        string `yaml:"name" json:"name"`
	Instruction string `yaml:"instruction" json:"instruction"`
	Format      string `yaml:"format,omitempty" json:"format,omitempty"`
	MaxLength   string `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Settings carries descriptive defaults written alongside generated actions files.
type Settings struct {
	Language          string `yaml:"language" json:"language"`
	Tone              string `yaml:"tone" json:"tone"`
	Domain            string `yaml:"domain" json:"domain"`
	MedicalDisclaimer string `yaml:"medical_disclaimer" json:"medical_disclaimer"`
	CreatedAt         string `yaml:"created_at" json:"created_at"`
	Version           string `yaml:"version" json:"version"`
}

// Actions validates the document and converts it into actions sorted by id.
// A document missing response_modes, or any mode missing name or instruction, is rejected as a whole.
func (d *Document) Actions() ([]Action, error) {
	if d == nil || d.ResponseModes == nil {
		return nil, fmt.Errorf("%w: response_modes is missing", ErrInvalidAction)
	}

	actions := make([]Action, 0, len(d.ResponseModes))
	for id, m := range d.ResponseModes {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("%w: %q: name is required", ErrInvalidAction, id)
		}
		format := FormatConversational
		if f, ok := ParseFormat(m.Format); ok {
			format = f
		}
		a := Action{
			ID:          id,
			Name:        m.Name,
			Instruction: m.Instruction,
			Format:      format,
			MaxLength:   m.MaxLength,
			Category:    m.Category,
			Description: m.Description,
		}
		if err := a.Validate(); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	return actions, nil
}

// RequireAction fails when id is not among actions.
func RequireAction(actions []Action, id string) error {
	for _, a := range actions {
		if a.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: default action %q is missing", ErrInvalidAction, id)
}

// DefaultActions is the built-in action set used when no usable configuration exists.
func DefaultActions() []Action {
	actions := []Action{
		{
			ID:          "default",
			Name:        "Assistant Professionnel",
			Instruction: "Tu es un assistant IA professionnel spécialisé dans la gestion de cabinet dentaire. Réponds de manière précise, claire et structurée.",
			Format:      FormatConversational,
			Description: "Mode de réponse standard pour usage général",
		},
		{
			ID:          "resume",
			Name:        "Résumé Structuré",
			Instruction: "Résume le texte suivant en exactement 5 points clés concis et clairs. Concentre-toi uniquement sur les informations essentielles.",
			Format:      FormatBulletPoints,
			MaxLength:   "5_bullets",
			Description: "Résumé concis en points clés",
		},
		{
			ID:          "explain",
			Name:        "Explication Pédagogique",
			Instruction: "Explique le concept suivant comme si tu enseignais à un débutant dans le domaine dentaire. Utilise un langage simple et des exemples pratiques.",
			Format:      FormatConversational,
			Description: "Explication pédagogique",
		},
		{
			ID:          "translate_fr",
			Name:        "Traduction Française",
			Instruction: "Traduis le texte suivant en français avec un ton formel et professionnel médical.",
			Format:      FormatConversational,
			Description: "Traduction française professionnelle",
		},
		{
			ID:          "translate_en",
			Name:        "Traduction Anglaise",
			Instruction: "Traduis le texte suivant en anglais avec un ton formel et professionnel médical.",
			Format:      FormatConversational,
			Description: "Traduction anglaise professionnelle",
		},
		{
			ID:          "short",
			Name:        "Réponse Courte",
			Instruction: "Fournis une réponse directe et professionnelle en maximum 2 phrases concises.",
			Format:      FormatConversational,
			MaxLength:   "2_sentences",
			Description: "Réponse concise (2 phrases max)",
		},
		{
			ID:          "long",
			Name:        "Réponse Détaillée",
			Instruction: "Fournis une réponse détaillée, structurée et bien organisée avec des exemples pertinents au domaine dentaire.",
			Format:      FormatConversational,
			Description: "Analyse détaillée et structurée",
		},
		{
			ID:          "pdf_analysis",
			Name:        "Analyse de Document",
			Instruction: "Tu es un assistant spécialisé dans l'analyse de documents médicaux dentaires. Analyse le contenu fourni et réponds à la question de manière précise et professionnelle.",
			Format:      FormatMedicalAnalysis,
			Description: "Analyse de documents PDF médicaux",
		},
		{
			ID:          "image_analysis",
			Name:        "Analyse d'Image",
			Instruction: "Tu es un assistant spécialisé dans l'interprétation d'images dentaires et de radiographies. Décris les éléments pertinents en rappelant que seul un praticien qualifié peut poser un diagnostic.",
			Format:      FormatMedicalAnalysis,
			Description: "Analyse d'images médicales/radiographies",
		},
		{
			ID:          "dental_diagnosis",
			Name:        "Assistant Diagnostic",
			Instruction: "Tu es un assistant spécialisé en diagnostic dentaire. Analyse les informations et aide au diagnostic en rappelant que tes suggestions ne remplacent pas l'expertise d'un dentiste qualifié.",
			Format:      FormatMedicalAnalysis,
			Description: "Assistance pour le diagnostic dentaire",
		},
		{
			ID:          "appointment_scheduler",
			Name:        "Gestion des Rendez-vous",
			Instruction: "Tu es un assistant spécialisé dans la gestion des rendez-vous dentaires. Aide à organiser et planifier les créneaux de consultation.",
			Format:      FormatConversational,
			Description: "Gestion des rendez-vous",
		},
		{
			ID:          "treatment_plan",
			Name:        "Plan de Traitement",
			Instruction: "Tu es un assistant pour l'élaboration de plans de traitement dentaire. Aide à structurer les étapes de soins selon les protocoles dentaires.",
			Format:      FormatMedicalAnalysis,
			Description: "Planification de traitements",
		},
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	return actions
}

// DefaultDocument renders DefaultActions in the actions file layout.
func DefaultDocument(now time.Time) *Document {
	doc := &Document{
		ResponseModes: make(map[string]Mode),
		DefaultSettings: &Settings{
			Language:          "fr",
			Tone:              "professional",
			Domain:            "dental_medicine",
			MedicalDisclaimer: "Les informations fournies sont à titre informatif et ne remplacent pas l'avis d'un professionnel de santé qualifié.",
			CreatedAt:         now.UTC().Format(time.RFC3339),
			Version:           "1.0.0",
		},
	}
	for _, a := range DefaultActions() {
		doc.ResponseModes[a.ID] = Mode{
			Name:        a.Name,
			Instruction: a.Instruction,
			Format:      string(a.Format),
			MaxLength:   a.MaxLength,
			Category:    a.Category,
			Description: a.Description,
		}
	}
	return doc
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"Traduction", []string{"translate"}},
	{"Analyse", []string{"analysis", "pdf", "image"}},
	{"Communication", []string{"short", "long", "resume"}},
	{"Médical", []string{"dental", "diagnosis", "treatment", "appointment"}},
}

// CategoryOf returns the action's explicit category, or one derived from keywords in its id.
func CategoryOf(a Action) string {
	if c := strings.TrimSpace(a.Category); c != "" {
		return c
	}
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(a.ID, w) {
				return ck.category
			}
		}
	}
	return "Général"
}

// DescriptionOf returns the action's description or a generic one for custom actions.
func DescriptionOf(a Action) string {
	if a.Description != "" {
		return a.Description
	}
	return "Action personnalisée: " + a.ID
}
