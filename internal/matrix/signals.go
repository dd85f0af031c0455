package matrix

import (
	"strings"

	"github.com/ppiankov/claimdesk/internal/model"
)

const signalPrefixLength = 50

// SignalForFact returns the first liability signal that quotes the fact,
// either through its evidence text or one of its related facts.
func SignalForFact(fact model.Fact, signals []model.Signal) (model.Signal, bool) {
	factText := strings.ToLower(strings.TrimSpace(fact.ExtractedFact))
	sourceText := strings.ToLower(fact.SourceText)
	if factText == "" {
		return model.Signal{}, false
	}

	for _, s := range signals {
		evidence := strings.ToLower(strings.TrimSpace(s.EvidenceText))
		if evidence != "" {
			if strings.Contains(evidence, factText) || strings.Contains(sourceText, prefix(evidence, signalPrefixLength)) {
				return s, true
			}
		}
		for _, related := range s.RelatedFacts {
			rel := strings.ToLower(strings.TrimSpace(related))
			if rel == "" {
				continue
			}
			if strings.Contains(rel, factText) || strings.Contains(factText, prefix(rel, signalPrefixLength)) {
				return s, true
			}
		}
	}
	return model.Signal{}, false
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
