package cases

import (
	"fmt"
	"strings"
)

// Status is the advisory lifecycle marker of a case. Any of the three values
// may be stored at any time; there is no transition graph.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAnalysis  Status = "analysis"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAnalysis, StatusCompleted:
		return true
	}
	return false
}

// Label is the Portuguese text shown on case cards.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "Em Andamento"
	case StatusAnalysis:
		return "Em Análise"
	default:
		return "Concluído"
	}
}

// ParseStatus accepts a status value case-insensitively.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown case status %q", v)
	}
	return s, nil
}

// Procurement modes offered by the new-case form.
const (
	ModalidadePregao             = "pregao"
	ModalidadeConcorrencia       = "concorrencia"
	ModalidadeConcurso           = "concurso"
	ModalidadeLeilao             = "leilao"
	ModalidadeDialogoCompetitivo = "dialogo_competitivo"
)

// Modalidades lists the known procurement modes in form order.
func Modalidades() []string {
	return []string{
		ModalidadePregao,
		ModalidadeConcorrencia,
		ModalidadeConcurso,
		ModalidadeLeilao,
		ModalidadeDialogoCompetitivo,
	}
}

// Case is a procurement dossier.
type Case struct {
	ID             string `json:"id"`
	Numero         string `json:"numero"`
	Objeto         string `json:"objeto"`
	Modalidade     string `json:"modalidade"`
	Orgao          string `json:"orgao"`
	DataPublicacao string `json:"dataPublicacao"`
	Status         Status `json:"status"`
	HasAnalysis    bool   `json:"hasAnalysis,omitempty"`
	AnalysisDate   string `json:"analysisDate,omitempty"`
}

// Fields is the user input for a new case.
type Fields struct {
	Numero         string `json:"numero"`
	Objeto         string `json:"objeto"`
	Modalidade     string `json:"modalidade"`
	Orgao          string `json:"orgao"`
	DataPublicacao string `json:"dataPublicacao"`
	Status         string `json:"status,omitempty"`
}

// ValidationError reports user input that was rejected before any state change.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// MissingFieldsMessage is shown when a case lacks its process number or object.
const MissingFieldsMessage = "Por favor, preencha pelo menos o número do processo e objeto da licitação."

// Validate checks the mandatory fields and the optional status.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Numero) == "" || strings.TrimSpace(f.Objeto) == "" {
		return &ValidationError{Message: MissingFieldsMessage}
	}
	if f.Status != "" {
		if _, err := ParseStatus(f.Status); err != nil {
			return &ValidationError{Message: err.Error()}
		}
	}
	return nil
}

// matches reports whether the lower-cased query is a substring of numero, objeto or orgao.
func (c Case) matches(q string) bool {
	return strings.Contains(strings.ToLower(c.Numero), q) ||
		strings.Contains(strings.ToLower(c.Objeto), q) ||
		strings.Contains(strings.ToLower(c.Orgao), q)
}

// DefaultCases are the sample dossiers shown before anything was persisted.
func DefaultCases() []Case {
	return []Case{
		{
			ID:             "1",
			Numero:         "14552/2023",
			Objeto:         "Pregão Eletrônico - Aquisição de Computadores",
			Modalidade:     ModalidadePregao,
			Orgao:          "Prefeitura Municipal",
			DataPublicacao: "2023-10-01",
			Status:         StatusOpen,
		},
		{
			ID:             "2",
			Numero:         "14876/2023",
			Objeto:         "Contratação de Serviços de Limpeza",
			Modalidade:     ModalidadePregao,
			Orgao:          "Secretaria de Saúde",
			DataPublicacao: "2023-10-05",
			Status:         StatusAnalysis,
		},
		{
			ID:             "3",
			Numero:         "14231/2023",
			Objeto:         "Concorrência - Obra de Infraestrutura",
			Modalidade:     ModalidadeConcorrencia,
			Orgao:          "Departamento de Obras",
			DataPublicacao: "2023-09-15",
			Status:         StatusCompleted,
		},
	}
}
