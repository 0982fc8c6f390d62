package tutor

import (
	"strings"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// Rewards returns the points for a solved problem: the matched snippet's
// rewards when it has any, otherwise a guess from the detected concept.
func Rewards(top *domain.Snippet, concept string) domain.SkillVector {
	if top != nil && len(top.SkillRewards) > 0 {
		return top.SkillRewards.Clone()
	}

	r := domain.SkillVector{domain.SkillLogic: 0.5}
	if strings.Contains(concept, "Loop") {
		r[domain.SkillLoops] = 1.0
	}
	if strings.Contains(concept, "Recursion") {
		r[domain.SkillRecursion] = 1.5
	}
	if strings.Contains(concept, "Syntax") || strings.Contains(concept, "Indentation") {
		r[domain.SkillSyntax] = 1.0
	}
	if strings.Contains(concept, "Data") || strings.Contains(concept, "List") {
		r[domain.SkillDataStructures] = 1.0
	}
	return r
}
