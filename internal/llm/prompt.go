package llm

import (
	"os"
	"strings"

	"github.com/spherical/account-planner/internal/domain"
)

// skeletonMarker is replaced by the schema skeleton in custom prompt files.
const skeletonMarker = "{{SCHEMA}}"

const instructionHeader = `You extract account planning information from sales documents.

Read the document supplied by the user and return ONLY a single JSON object
that follows the structure below exactly:
- Use every key shown, spelled exactly as shown, and no others.
- Objects stay objects; lists stay lists, even when they hold one item.
- Put each fact under the most specific matching key.
- Where the document does not state a value, use "` + domain.Placeholder + `".
- Do not invent names, numbers or dates.
- Do not repeat a word or phrase back to back.
- Output plain JSON: no markdown fences, comments or trailing commas.

Structure (the strings describe what belongs in each field):
`

// BuildInstruction returns the system instruction for a schema skeleton.
func BuildInstruction(skeleton []byte) string {
	return instructionHeader + string(skeleton) + "\n"
}

// LoadInstruction reads a prompt file. A {{SCHEMA}} marker in the file is
// replaced by skeleton; without one the skeleton is appended. An empty
// path returns BuildInstruction(skeleton).
func LoadInstruction(path string, skeleton []byte) (string, error) {
	if path == "" {
		return BuildInstruction(skeleton), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", domain.ConfigError("read prompt file", err)
	}
	prompt := string(data)
	if strings.Contains(prompt, skeletonMarker) {
		return strings.ReplaceAll(prompt, skeletonMarker, string(skeleton)), nil
	}
	return strings.TrimRight(prompt, "\n") + "\n\n" + string(skeleton) + "\n", nil
}
