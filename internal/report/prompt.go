package report

import (
	"fmt"
	"strings"
)

// SystemInstruction frames the refinement model's role.
const SystemInstruction = "Você é um assistente sênior de coordenação pedagógica escolar."

// Prompt builds the refinement request for a.
func Prompt(a AttendanceData) string {
	var b strings.Builder
	b.WriteString("DADOS DE ENTRADA:\n")
	fmt.Fprintf(&b, "- Aluno: %s\n", a.StudentName)
	fmt.Fprintf(&b, "- Turma: %s\n", a.ClassName)
	fmt.Fprintf(&b, "- Solicitado por: %s\n", a.RequestedBy)
	fmt.Fprintf(&b, "- Motivo: %s\n", a.Reason)
	fmt.Fprintf(&b, "- Notas Brutas da Reunião: %s\n\n", a.RoughNotes)
	b.WriteString(`SUA MISSÃO:
Atue como um especialista em Orientação Educacional (SOE). Transforme as notas brutas em um relatório formal.
1. Reescreva o conteúdo utilizando a norma culta da língua portuguesa.
2. Substitua termos coloquiais ou julgamentos de valor por terminologia pedagógica adequada.
3. Mantenha o tom empático, porém objetivo e documental.
4. Organize o texto em fluxo lógico: Situação apresentada > Intervenção/Conversa > Combinados.
5. Extraia uma lista clara de encaminhamentos/combinados para o array 'agreements'.
Responda somente com um objeto JSON com os campos "formalReport" (string) e "agreements" (lista de strings).
`)
	return b.String()
}
