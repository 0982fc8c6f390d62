package tutor

import (
	"fmt"
	"math"
	"time"

	"github.com/felixgeelhaar/socratic/internal/domain"
)

// MaxLives is the number of wrong answers allowed per calibration item.
const MaxLives = 3

// CalibrationItem is one quiz question.
type CalibrationItem struct {
	ID     string             `json:"id"`
	Topic  string             `json:"topic"`
	Code   string             `json:"code"`
	Hint   string             `json:"-"`
	Reward domain.SkillVector `json:"-"`
}

// CalibrationItems is the fixed placement quiz.
var CalibrationItems = []CalibrationItem{
	{
		ID:     "calib_01",
		Topic:  "Syntax",
		Code:   "def greet(name)\n    print('Hello ' + name)",
		Hint:   "Focus on the function definition line. Python requires a specific symbol at the end.",
		Reward: domain.SkillVector{domain.SkillSyntax: 2.0, domain.SkillLogic: 1.0},
	},
	{
		ID:     "calib_02",
		Topic:  "Loops",
		Code:   "count = 0\nwhile count < 3:\n    print(count)",
		Hint:   "This loop runs forever because the condition never becomes False. How do you change 'count'?",
		Reward: domain.SkillVector{domain.SkillLoops: 2.0, domain.SkillLogic: 1.0},
	},
	{
		ID:     "calib_03",
		Topic:  "Recursion",
		Code:   "def fact(n):\n    return n * fact(n-1)",
		Hint:   "Infinite recursion! You need a 'base case' to stop calling the function when n reaches 0 or 1.",
		Reward: domain.SkillVector{domain.SkillRecursion: 2.0, domain.SkillLogic: 1.0},
	},
	{
		ID:     "calib_04",
		Topic:  "Conditionals",
		Code:   "x = 10\nif x = 10:\n    print('Equal')",
		Hint:   "In Python, a single '=' is for assignment. What do we use for comparison?",
		Reward: domain.SkillVector{domain.SkillLogic: 2.0, domain.SkillSyntax: 1.0},
	},
	{
		ID:     "calib_05",
		Topic:  "Data Structures",
		Code:   "my_list = [1, 2, 3]\nprint(my_list[3])",
		Hint:   "Lists are 0-indexed. The last item is at index 2. Index 3 is out of bounds.",
		Reward: domain.SkillVector{domain.SkillDataStructures: 2.0, domain.SkillLogic: 1.0},
	},
}

// SkipAllSkills is written when the learner skips the whole quiz.
var SkipAllSkills = domain.SkillVector{domain.SkillSyntax: 1.0, domain.SkillLogic: 1.0}

// Feedback kinds.
const (
	FeedbackSuccess = "success"
	FeedbackError   = "error"
)

// Calibration is a learner's progress through the quiz.
type Calibration struct {
	UserID       int64              `json:"user_id"`
	Index        int                `json:"index"`
	Failures     int                `json:"failures"`
	Score        domain.SkillVector `json:"score"`
	Feedback     string             `json:"feedback,omitempty"`
	FeedbackType string             `json:"feedback_type,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewCalibration starts the quiz at the first item.
func NewCalibration(userID int64) *Calibration {
	return &Calibration{UserID: userID, Score: domain.SkillVector{}}
}

// Done reports whether every item was answered or skipped.
func (c *Calibration) Done() bool {
	return c.Index >= len(CalibrationItems)
}

// Current returns the active item, nil when done.
func (c *Calibration) Current() *CalibrationItem {
	if c.Done() {
		return nil
	}
	return &CalibrationItems[c.Index]
}

// LivesLeft returns the remaining tries on the current item.
func (c *Calibration) LivesLeft() int {
	return MaxLives - c.Failures
}

// Multiplier is the share of the reward a pass earns now:
// 1 - 0.25 per failure, never below one half.
func (c *Calibration) Multiplier() float64 {
	return math.Max(0.5, 1.0-0.25*float64(c.Failures))
}

// Record applies a judged answer to the current item. A pass or the last
// failure moves on to the next item.
func (c *Calibration) Record(passed bool) {
	item := c.Current()
	if item == nil {
		return
	}
	if c.Score == nil {
		c.Score = domain.SkillVector{}
	}

	if passed {
		m := c.Multiplier()
		for k, v := range item.Reward {
			c.Score[k] += v * m
		}
		c.setFeedback(FeedbackSuccess, fmt.Sprintf("✅ Correct! (Earned %d%% points)", int(m*100)))
		c.advance()
		return
	}

	c.Failures++
	if c.Failures >= MaxLives {
		c.setFeedback(FeedbackError, "❌ Incorrect. No lives left. Hint: "+item.Hint)
		c.advance()
		return
	}
	c.setFeedback(FeedbackError, "❌ Incorrect. Try again. Hint: "+item.Hint)
}

// Skip moves past the current item without points.
func (c *Calibration) Skip() {
	if c.Done() {
		return
	}
	c.Feedback, c.FeedbackType = "", ""
	c.advance()
}

func (c *Calibration) setFeedback(kind, msg string) {
	c.FeedbackType = kind
	c.Feedback = msg
}

func (c *Calibration) advance() {
	c.Index++
	c.Failures = 0
}
