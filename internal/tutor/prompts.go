package tutor

import (
	"fmt"
	"strings"
)

func tutorPrompt(phase, name, code string, history []ChatMessage) string {
	var hist strings.Builder
	for _, m := range history {
		fmt.Fprintf(&hist, "%s: %s\n", m.Role, m.Content)
	}

	return fmt.Sprintf(`You are a Socratic tutor for Python debugging.

Current phase: %[1]s
The learner's name is "%[2]s".

Learner's code:
`+"```python\n%[3]s\n```"+`

Conversation so far:
%[4]s
Rules you must follow:
1. Speak to the learner directly by name ("%[2]s"), never as "you".
2. Keep it short: two sentences at most.
3. Never reveal the fix. Ask one guiding question instead.
4. Never mention the words "Root", "Taxonomy", "Node" or "Dataset".
5. If the learner is wrong, point them at one concrete concept to check, such as how they iterate.
`, phase, name, code, hist.String())
}

func judgePrompt(name, original, fix, predicted string) string {
	return fmt.Sprintf(`Act as a strict code reviewer.
Learner: "%[1]s"

1. Original buggy code:
%[2]s

2. Learner's fix:
%[3]s

3. Error that must be fixed: %[4]s

4. Syntax check: passed (the fix is valid Python).

Instructions:
- The syntax check passed, so do not complain about colons, parentheses or indentation unless they break the logic.
- Judge only whether the change fixes '%[4]s'.
- If the fix is valid, no longer shows '%[4]s', and the original intent is unclear, let it pass.

Answer in exactly one of these forms:
YES: <encouraging remark>
NO: <specific hint, without giving the answer code>
`, name, original, fix, predicted)
}
