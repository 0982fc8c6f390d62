// Package analytics builds the learner dashboard: skill progression over
// sessions, per-session gains and the recommended practice topic.
package analytics

import (
	"strconv"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// StartLabel names the all-zero point that opens a progress series.
const StartLabel = "Start"

// ProgressPoint is a cumulative skill snapshot after one solved attempt.
type ProgressPoint struct {
	Session string             `json:"session"`
	Skills  domain.SkillVector `json:"skills"`
}

// RecommendTopic returns the weakest skill. It reports false when the
// learner has no skill profile.
func RecommendTopic(skills domain.SkillVector) (domain.Skill, bool) {
	if len(skills) == 0 {
		return "", false
	}
	s, _ := skills.Weakest()
	return s, true
}

// Progress replays successful attempts, oldest first, into cumulative
// snapshots. Points are labelled S1, S2, ... by the order in which their
// session first appears. It returns nil when there is nothing to plot.
func Progress(successes []domain.Attempt) []ProgressPoint {
	if len(successes) == 0 {
		return nil
	}

	current := domain.NewSkillVector()
	points := make([]ProgressPoint, 0, len(successes)+1)
	points = append(points, ProgressPoint{Session: StartLabel, Skills: current.Clone()})

	labels := make(map[string]string)
	for _, a := range successes {
		label, ok := labels[a.SessionID]
		if !ok {
			label = "S" + strconv.Itoa(len(labels)+1)
			labels[a.SessionID] = label
		}
		for k, v := range a.Rewards {
			if k.IsKnown() {
				current[k] += v
			}
		}
		points = append(points, ProgressPoint{Session: label, Skills: current.Clone()})
	}
	return points
}

// SessionGains sums the rewards earned across a session's attempts.
func SessionGains(history []domain.Attempt) domain.SkillVector {
	gains := domain.SkillVector{}
	for _, a := range history {
		for k, v := range a.Rewards {
			gains[k] += v
		}
	}
	return gains
}

