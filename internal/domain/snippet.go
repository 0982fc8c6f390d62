package domain

// Difficulty grades a corpus snippet.
type Difficulty string

const (
	DifficultyNovice       Difficulty = "Novice"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
)

// UnknownErrorType is used for snippets that carry no error type.
const UnknownErrorType = "Unknown"

// Snippet is a known buggy code example from the corpus.
type Snippet struct {
	ID           string      `json:"id"`
	Code         string      `json:"code"`
	ErrorType    string      `json:"error_type"`
	Topic        string      `json:"topic"`
	Hint         string      `json:"hint"`
	Difficulty   Difficulty  `json:"difficulty,omitempty"`
	SkillRewards SkillVector `json:"skill_rewards,omitempty"`
}

// Level returns the snippet difficulty, defaulting to Novice.
func (s *Snippet) Level() Difficulty {
	if s.Difficulty == "" {
		return DifficultyNovice
	}
	return s.Difficulty
}

// ErrorKind returns the error type, defaulting to Unknown.
func (s *Snippet) ErrorKind() string {
	if s.ErrorType == "" {
		return UnknownErrorType
	}
	return s.ErrorType
}
