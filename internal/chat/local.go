package chat

import "strings"

// Canned replies of the local responder.
const (
	ReplyGreeting       = "Olá! Sou o Harvey, seu assistente jurídico especializado em licitações públicas. Baseio minhas análises na Lei nº 14.133/2021, jurisprudência atualizada e doutrina de referência. Como posso ajudá-lo hoje?"
	ReplyEditalAnalysis = "Para análise de edital, preciso dos seguintes dados: 1) Número do processo; 2) Objeto da licitação; 3) Empresa participante; 4) Motivo da contestação. Com essas informações, posso realizar uma análise jurídica detalhada."
	ReplyDefense        = "Para elaborar uma defesa, preciso que você forneça: 1) Dados completos da empresa; 2) Número do processo/licitação; 3) Objeto; 4) Motivo da impugnação/recursos. Após coletar essas informações, poderei elaborar a peça jurídica com fundamentação técnica."
	ReplyStatute        = "A Lei nº 14.133/2021 (Nova Lei de Licitações) trouxe significativas mudanças para o regime jurídico licitatório. Principais aspectos: 1) Modalidades de licitação; 2) Registro de preços; 3) Contratação direta; 4) Julgamento; 5) Recursos administrativos. Sobre qual aspecto específico você gostaria de saber mais?"
	ReplyDefault        = "Compreendo sua questão. Para fornecer uma resposta precisa e fundamentada, preciso de mais detalhes sobre o caso: 1) Número do processo; 2) Objeto da licitação; 3) Modalidade; 4) Ponto específico de contestação. Com essas informações, posso analisar com base na Lei 14.133/2021 e jurisprudência aplicável."
)

// WelcomeMessage opens every fresh transcript.
const WelcomeMessage = "Olá! Sou o Harvey, seu assistente jurídico especializado em licitações públicas (Lei 14.133/2021). Como posso ajudá-lo hoje?"

// ErrorMessage replaces a reply that could not be produced at all.
const ErrorMessage = "Desculpe, ocorreu um erro ao processar sua mensagem. Verifique as configurações da API."

// rules are checked in order; the first rule with a matching keyword wins.
var rules = []struct {
	keywords []string
	reply    string
}{
	{[]string{"olá", "oi", "hello"}, ReplyGreeting},
	{[]string{"analisar", "edital", "licitação"}, ReplyEditalAnalysis},
	{[]string{"elaborar", "defesa", "recurso"}, ReplyDefense},
	{[]string{"14.133", "lei nova", "licitações"}, ReplyStatute},
}

// LocalResponse answers message from the canned table.
func LocalResponse(message string) string {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.reply
			}
		}
	}
	return ReplyDefault
}
