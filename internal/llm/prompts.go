package llm

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultHarveyPrompt is the chat system prompt used until the user saves their own.
const DefaultHarveyPrompt = `Você é Harvey, um assistente jurídico especializado em licitações públicas brasileiras, baseado na Lei nº 14.133/2021. Você auxilia advogados e empresas na elaboração de recursos, contrarrazões e análise de editais de licitação.

Suas especialidades incluem:
- Análise de editais de licitação
- Elaboração de recursos administrativos
- Redação de contrarrazões
- Interpretação da Lei 14.133/2021
- Orientações sobre procedimentos licitatórios
- Identificação de vícios em editais
- Sugestões de estratégias jurídicas

Sempre forneça respostas precisas, fundamentadas na legislação brasileira e com linguagem jurídica apropriada. Quando necessário, cite artigos específicos da lei.`

// AnalysisSystemPrompt instructs the model for edital analysis.
const AnalysisSystemPrompt = `Você é um especialista em análise de editais de licitação pública brasileira.
Analise o edital fornecido e identifique:

1. **Vícios e Irregularidades:**
   - Cláusulas restritivas à competitividade
   - Exigências desproporcionais ou desnecessárias
   - Violações à Lei 14.133/2021
   - Critérios de julgamento inadequados

2. **Oportunidades de Impugnação:**
   - Pontos passíveis de questionamento
   - Fundamentação jurídica para recursos
   - Artigos da lei aplicáveis

3. **Estratégias Recomendadas:**
   - Abordagem para participação
   - Documentação necessária
   - Prazos importantes

4. **Riscos Identificados:**
   - Aspectos que podem prejudicar a participação
   - Cláusulas ambíguas ou problemáticas

Forneça uma análise detalhada, fundamentada na legislação brasileira.`

// Generation parameters used by the chat and analysis calls.
const (
	ChatMaxTokens       = 1500
	ChatTemperature     = 0.7
	AnalysisModel       = "gpt-4"
	AnalysisMaxTokens   = 2000
	AnalysisTemperature = 0.3
)

// ChatRequest builds the generation request for a chat message. An empty
// system prompt falls back to DefaultHarveyPrompt.
func ChatRequest(systemPrompt, message, model string) Request {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultHarveyPrompt
	}
	return Request{
		System:      systemPrompt,
		Prompt:      message,
		Model:       model,
		MaxTokens:   ChatMaxTokens,
		Temperature: Temperature(ChatTemperature),
	}
}

// AnalysisRequest builds the generation request for an edital analysis.
func AnalysisRequest(companyData, editalContent string) Request {
	return Request{
		System:      AnalysisSystemPrompt,
		Prompt:      fmt.Sprintf("Dados da empresa: %s\n\nEdital: %s", companyData, editalContent),
		Model:       AnalysisModel,
		MaxTokens:   AnalysisMaxTokens,
		Temperature: Temperature(AnalysisTemperature),
	}
}

// FallbackAnalysis is the static checklist returned when no model is reachable.
func FallbackAnalysis(companyData, editalContent string) string {
	company := []rune(companyData)
	if len(company) > 200 {
		company = company[:200]
	}
	return fmt.Sprintf(`# Análise Básica do Edital

## Resumo
Esta é uma análise básica gerada automaticamente. Para uma análise completa com IA, configure a API key do provedor.

## Pontos de Atenção Gerais
1. **Verificar Habilitação Jurídica:**
   - Certidão de regularidade fiscal
   - Certidão trabalhista
   - Certidão municipal

2. **Qualificação Técnica:**
   - Atestados de capacidade técnica
   - Registro no órgão competente
   - Experiência mínima exigida

3. **Qualificação Econômico-Financeira:**
   - Balanço patrimonial
   - Certidão negativa de falência
   - Índices de liquidez

## Recomendações
- Revisar todos os anexos do edital
- Verificar prazos de entrega
- Analisar critérios de julgamento
- Confirmar local de entrega das propostas

## Próximos Passos
1. Configure a API key do provedor para análise detalhada
2. Revise manualmente o edital
3. Consulte especialista jurídico se necessário

**Dados da empresa considerados:** %s...
**Conteúdo do edital:** %d caracteres analisados.
`, string(company), len([]rune(editalContent)))
}

// Draft types offered by the legal draft form.
var DraftTypes = []string{
	"Recurso Administrativo",
	"Contrarrazões",
	"Impugnação ao Edital",
	"Pedido de Esclarecimento",
}

// DraftFieldsMessage is shown when the draft form is incomplete.
const DraftFieldsMessage = "Por favor, preencha todos os campos para gerar o esboço."

// ErrDraftFields is returned by BuildDraftPrompt when facts or points are blank.
var ErrDraftFields = errors.New(DraftFieldsMessage)

// BuildDraftPrompt assembles the instruction sent to the generative proxy for
// a legal draft of kind tipoPeca.
func BuildDraftPrompt(tipoPeca, fatos, pontos string) (string, error) {
	fatos = strings.TrimSpace(fatos)
	pontos = strings.TrimSpace(pontos)
	if fatos == "" || pontos == "" {
		return "", ErrDraftFields
	}
	tipoPeca = strings.TrimSpace(tipoPeca)
	if tipoPeca == "" {
		tipoPeca = DraftTypes[0]
	}

	var sb strings.Builder
	sb.WriteString("Aja como um advogado especialista em direito público brasileiro, com foco em licitações e contratos administrativos (Lei 14.133/2021).\n")
	fmt.Fprintf(&sb, "Sua tarefa é elaborar um esboço inicial e bem fundamentado para uma peça processual do tipo \"%s\".\n\n", tipoPeca)
	sb.WriteString("**Contexto do Caso (Fatos e Decisão):**\n")
	sb.WriteString(fatos)
	sb.WriteString("\n\n**Pontos Principais a serem Argumentados:**\n")
	sb.WriteString(pontos)
	sb.WriteString("\n\n**Instruções de Estrutura:**\n")
	sb.WriteString("1. **Endereçamento:** Sugira um endereçamento apropriado.\n")
	sb.WriteString("2. **Síntese dos Fatos:** Resuma o contexto de forma clara e objetiva.\n")
	sb.WriteString("3. **Do Direito (Fundamentação Jurídica):** Desenvolva cada um dos \"Pontos Principais a serem Argumentados\", citando, se possível, artigos da Lei nº 14.133/2021, princípios do direito administrativo e jurisprudência pertinente de tribunais superiores (STJ, STF, TCU).\n")
	sb.WriteString("4. **Dos Pedidos:** Elabore os pedidos de forma consequente com a argumentação.\n\n")
	sb.WriteString("**Estilo e Tom:**\n")
	sb.WriteString("- Utilize uma linguagem formal, técnica e persuasiva.\n")
	sb.WriteString("- Organize o texto de forma clara, com parágrafos bem definidos.\n")
	sb.WriteString("- Não inclua nomes de advogados, OAB, ou informações de contato. Apenas a estrutura da peça.\n")
	return sb.String(), nil
}
