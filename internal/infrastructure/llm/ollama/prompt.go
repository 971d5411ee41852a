package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

func buildAnswerPrompt(question string, passages []domain.RankedPassage) string {
	var contextBuilder strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&contextBuilder, "[%d] %s\n%s\n\n", p.Rank, p.CitationLabel, p.Text)
	}

	return fmt.Sprintf(`Beantwoord de vraag uitsluitend op basis van de polispassages hieronder.
Verwijs na elke bewering naar de bron met het nummer tussen vierkante haken, bijvoorbeeld [1].
Als de passages onvoldoende informatie bevatten, zeg dat dan expliciet.

Vraag:
%s

Passages:
%s`, question, contextBuilder.String())
}
