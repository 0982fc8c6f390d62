package domain

import (
	"math"
	"strings"
)

// Skill is one dimension of a learner's skill vector.
type Skill string

const (
	SkillLoops          Skill = "Loops"
	SkillRecursion      Skill = "Recursion"
	SkillSyntax         Skill = "Syntax"
	SkillLogic          Skill = "Logic"
	SkillDataStructures Skill = "Data_Structures"
)

// AllSkills lists the tracked skills in canonical order. Ties in
// strongest/weakest lookups resolve to the earliest entry.
var AllSkills = []Skill{
	SkillLoops,
	SkillRecursion,
	SkillSyntax,
	SkillLogic,
	SkillDataStructures,
}

// ParseSkill resolves a skill name, ignoring case and treating spaces as
// underscores ("data structures" -> Data_Structures).
func ParseSkill(name string) (Skill, bool) {
	norm := strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	for _, s := range AllSkills {
		if strings.EqualFold(string(s), norm) {
			return s, true
		}
	}
	return "", false
}

// IsKnown reports whether s is one of the tracked skills.
func (s Skill) IsKnown() bool {
	for _, known := range AllSkills {
		if s == known {
			return true
		}
	}
	return false
}

// SkillVector maps skills to points. It doubles as a reward set, in which
// case it may carry keys outside AllSkills; those are ignored on merge.
type SkillVector map[Skill]float64

// NewSkillVector returns a vector with every tracked skill set to zero.
func NewSkillVector() SkillVector {
	v := make(SkillVector, len(AllSkills))
	for _, s := range AllSkills {
		v[s] = 0
	}
	return v
}

// Get returns the points for a skill, zero when absent.
func (v SkillVector) Get(s Skill) float64 {
	if v == nil {
		return 0
	}
	return v[s]
}

// Sum totals the tracked skills.
func (v SkillVector) Sum() float64 {
	var total float64
	for _, s := range AllSkills {
		total += v.Get(s)
	}
	return total
}

// IsZero reports whether the vector carries no points.
func (v SkillVector) IsZero() bool {
	return v.Sum() == 0
}

// Clone returns a copy of the vector.
func (v SkillVector) Clone() SkillVector {
	out := make(SkillVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Plus returns a full vector where each tracked skill is v[s] + delta[s].
func (v SkillVector) Plus(delta SkillVector) SkillVector {
	out := NewSkillVector()
	for _, s := range AllSkills {
		out[s] = v.Get(s) + delta.Get(s)
	}
	return out
}

// Scale multiplies every entry by f.
func (v SkillVector) Scale(f float64) SkillVector {
	out := make(SkillVector, len(v))
	for k, val := range v {
		out[k] = val * f
	}
	return out
}

// Strongest returns the highest scoring tracked skill.
func (v SkillVector) Strongest() (Skill, float64) {
	best, bestVal := AllSkills[0], math.Inf(-1)
	for _, s := range AllSkills {
		if val := v.Get(s); val > bestVal {
			best, bestVal = s, val
		}
	}
	return best, bestVal
}

// Weakest returns the lowest scoring tracked skill.
func (v SkillVector) Weakest() (Skill, float64) {
	worst, worstVal := AllSkills[0], math.Inf(1)
	for _, s := range AllSkills {
		if val := v.Get(s); val < worstVal {
			worst, worstVal = s, val
		}
	}
	return worst, worstVal
}

// Known returns only the tracked skills present in v.
func (v SkillVector) Known() SkillVector {
	out := make(SkillVector)
	for _, s := range AllSkills {
		if val, ok := v[s]; ok {
			out[s] = val
		}
	}
	return out
}
