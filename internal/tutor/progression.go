package tutor

import (
	"fmt"
	"math"
	"strings"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// PlayerProfile is the learner's level and title.
type PlayerProfile struct {
	Level   int     `json:"level"`
	Title   string  `json:"title"`
	TotalXP float64 `json:"total_xp"`
}

// Experience renders the sidebar line, e.g. "Lvl 2 | Loops Apprentice".
func (p PlayerProfile) Experience() string {
	return fmt.Sprintf("Lvl %d | %s", p.Level, p.Title)
}

// Profile derives level and title from a skill vector. A missing vector is
// a fresh Novice.
func Profile(skills domain.SkillVector) PlayerProfile {
	if len(skills) == 0 {
		return PlayerProfile{Title: "Novice"}
	}

	avg := skills.Sum() / float64(len(domain.AllSkills))
	best, val := skills.Strongest()
	return PlayerProfile{
		Level:   int(avg),
		Title:   fmt.Sprintf("%s %s", best, rankSuffix(val)),
		TotalXP: math.Round(avg*10) / 10,
	}
}

func rankSuffix(v float64) string {
	switch {
	case v < 5:
		return "Novice"
	case v < 10:
		return "Apprentice"
	case v < 20:
		return "Adept"
	case v < 40:
		return "Master"
	default:
		return "Grandmaster"
	}
}

// RankTip is the dashboard advice for the next rank.
type RankTip struct {
	Skill    domain.Skill `json:"skill"`
	Current  float64      `json:"current"`
	NextGoal float64      `json:"next_goal,omitempty"`
	Message  string       `json:"message"`
}

// NextRankTip points at the next threshold of the strongest skill. It is
// nil when the learner has no points yet.
func NextRankTip(skills domain.SkillVector) *RankTip {
	if skills.IsZero() {
		return nil
	}
	best, val := skills.Strongest()
	tip := &RankTip{Skill: best, Current: val}
	if val >= 20 {
		tip.Message = fmt.Sprintf("You are a %s Master!", best)
		return tip
	}
	switch {
	case val < 5:
		tip.NextGoal = 5
	case val < 10:
		tip.NextGoal = 10
	default:
		tip.NextGoal = 20
	}
	tip.Message = fmt.Sprintf("Reach %.1f in %s to rank up!", tip.NextGoal, best)
	return tip
}

// RequiredSkill maps a snippet topic to the skill that gates it.
func RequiredSkill(topic string) domain.Skill {
	t := strings.ToLower(topic)
	switch {
	case strings.Contains(t, "loop"):
		return domain.SkillLoops
	case strings.Contains(t, "recursion"):
		return domain.SkillRecursion
	case strings.Contains(t, "list"), strings.Contains(t, "dict"), strings.Contains(t, "class"):
		return domain.SkillDataStructures
	case strings.Contains(t, "syntax"):
		return domain.SkillSyntax
	default:
		return domain.SkillLogic
	}
}

// IsLocked reports whether the learner lacks the skill a snippet requires.
// Novice snippets are always open; Intermediate needs 5 points and
// Advanced 10 in the required skill.
func IsLocked(s *domain.Snippet, skills domain.SkillVector) bool {
	have := skills.Get(RequiredSkill(s.Topic))
	switch s.Level() {
	case domain.DifficultyIntermediate:
		return have < 5
	case domain.DifficultyAdvanced:
		return have < 10
	default:
		return false
	}
}

// NeedsCalibration reports whether the learner has no skill points yet.
func NeedsCalibration(skills domain.SkillVector) bool {
	return len(skills) == 0 || skills.Sum() == 0
}
