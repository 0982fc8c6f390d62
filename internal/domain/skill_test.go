package domain

import "testing"

func TestParseSkill(t *testing.T) {
	tests := []struct {
		in   string
		want Skill
		ok   bool
	}{
		{"Loops", SkillLoops, true},
		{"loops", SkillLoops, true},
		{"Data Structures", SkillDataStructures, true},
		{"data_structures", SkillDataStructures, true},
		{" Syntax ", SkillSyntax, true},
		{"Conditionals", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSkill(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseSkill(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSkillVector_Plus(t *testing.T) {
	base := SkillVector{SkillLoops: 1, SkillLogic: 2}
	delta := SkillVector{SkillLoops: 0.5, SkillRecursion: 1.5, "Conditionals": 3}

	got := base.Plus(delta)

	if got[SkillLoops] != 1.5 {
		t.Errorf("Loops = %v, want 1.5", got[SkillLoops])
	}
	if got[SkillRecursion] != 1.5 {
		t.Errorf("Recursion = %v, want 1.5", got[SkillRecursion])
	}
	if got[SkillLogic] != 2 {
		t.Errorf("Logic = %v, want 2", got[SkillLogic])
	}
	if _, ok := got["Conditionals"]; ok {
		t.Error("Plus should drop untracked keys")
	}
	if len(got) != len(AllSkills) {
		t.Errorf("len = %d, want %d", len(got), len(AllSkills))
	}
	if base[SkillLoops] != 1 {
		t.Error("Plus must not mutate the receiver")
	}
}

func TestSkillVector_StrongestWeakest(t *testing.T) {
	v := SkillVector{
		SkillLoops:          3,
		SkillRecursion:      7,
		SkillSyntax:         7,
		SkillLogic:          1,
		SkillDataStructures: 1,
	}

	if s, val := v.Strongest(); s != SkillRecursion || val != 7 {
		t.Errorf("Strongest() = (%s, %v), want (Recursion, 7)", s, val)
	}
	if s, val := v.Weakest(); s != SkillLogic || val != 1 {
		t.Errorf("Weakest() = (%s, %v), want (Logic, 1)", s, val)
	}

	zero := NewSkillVector()
	if s, _ := zero.Weakest(); s != SkillLoops {
		t.Errorf("Weakest() on zero vector = %s, want Loops", s)
	}
}

func TestSkillVector_SumAndZero(t *testing.T) {
	var nilVec SkillVector
	if !nilVec.IsZero() {
		t.Error("nil vector should be zero")
	}
	v := SkillVector{SkillSyntax: 1, SkillLogic: 1, "Other": 10}
	if v.Sum() != 2 {
		t.Errorf("Sum() = %v, want 2", v.Sum())
	}
}

func TestSkillVector_Scale(t *testing.T) {
	v := SkillVector{SkillLoops: 2, SkillLogic: 1}.Scale(0.75)
	if v[SkillLoops] != 1.5 || v[SkillLogic] != 0.75 {
		t.Errorf("Scale() = %v", v)
	}
}

func TestAttemptStats_SuccessRate(t *testing.T) {
	tests := []struct {
		stats AttemptStats
		want  int
	}{
		{AttemptStats{}, 0},
		{AttemptStats{Total: 3, Success: 1}, 33},
		{AttemptStats{Total: 4, Success: 4}, 100},
	}
	for _, tt := range tests {
		if got := tt.stats.SuccessRate(); got != tt.want {
			t.Errorf("SuccessRate(%+v) = %d, want %d", tt.stats, got, tt.want)
		}
	}
}

func TestSnippet_Defaults(t *testing.T) {
	s := &Snippet{ID: "x"}
	if s.Level() != DifficultyNovice {
		t.Errorf("Level() = %s, want Novice", s.Level())
	}
	if s.ErrorKind() != UnknownErrorType {
		t.Errorf("ErrorKind() = %s, want Unknown", s.ErrorKind())
	}
}
