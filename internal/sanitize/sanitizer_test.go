package sanitize

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/spherical/account-planner/internal/domain"
)

func TestSanitizer_String(t *testing.T) {
	s := New(Config{})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain value unchanged", "Healthy", "Healthy"},
		{"inner spacing kept when nothing repeats", "Improve  throughput", "Improve  throughput"},
		{"trims", "  Jane Smith \n", "Jane Smith"},
		{"whitespace only", "   ", "Not Available"},
		{"empty", "", "Not Available"},
		{"junk n/a", "N/A", "Not Available"},
		{"junk question marks", "???", "Not Available"},
		{"junk test", "Test", "Not Available"},
		{"junk with padding", "  null  ", "Not Available"},
		{"placeholder repeated", "Not Available Not Available Not Available", "Not Available"},
		{"placeholder repeated twice with comma", "Not Available, not available", "Not Available"},
		{"brand stutter", "Omega Omega Omega Omega Health System", "Omega Health System"},
		{"brand twice", "Omega Omega Health", "Omega Health"},
		{"brand prefix of longer word kept", "Omega Omegaverse", "Omega Omegaverse"},
		{"generic triple word", "very very very important", "very important"},
		{"generic phrase", "patient flow patient flow patient flow optimization", "patient flow optimization"},
		{"double generic word kept", "had had", "had had"},
		{"collapse to junk ends as placeholder", "n/a n/a n/a", "Not Available"},
		{"none is meaningful", "None", "None"},
		{"repeat inside multi-line value keeps layout", "Goals:\n- grow grow grow revenue\n- expand  footprint", "Goals:\n- grow revenue\n- expand  footprint"},
		{"brand stutter inside multi-line value keeps layout", "Goals:\n- Omega Omega platform\n- expand  footprint", "Goals:\n- Omega platform\n- expand  footprint"},
		{"phrase repeated across lines", "Next steps:\nrenew contract\nrenew contract\nrenew contract\n\nOwner:  Jane", "Next steps:\nrenew contract\n\nOwner:  Jane"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.String(tc.input))
		})
	}
}

func TestSanitize_Tree(t *testing.T) {
	in := map[string]any{
		"account_overview": map[string]any{
			"account_name": "Omega Omega Omega Omega Health System",
			"account_owner": "   ",
			"omega_team": []any{
				map[string]any{"name": nil, "location": "Austin"},
			},
		},
		"score":   72.0,
		"enabled": true,
	}

	out := Sanitize(in).(map[string]any)

	overview := out["account_overview"].(map[string]any)
	assert.Equal(t, "Omega Health System", overview["account_name"])
	assert.Equal(t, "Not Available", overview["account_owner"])

	member := overview["omega_team"].([]any)[0].(map[string]any)
	assert.Equal(t, "Not Available", member["name"])
	assert.Equal(t, "Austin", member["location"])

	assert.Equal(t, 72.0, out["score"])
	assert.Equal(t, true, out["enabled"])

	// Input untouched.
	assert.Equal(t, "   ", in["account_overview"].(map[string]any)["account_owner"])
}

func TestSanitize_CustomConfig(t *testing.T) {
	s := New(Config{
		Placeholder: "TBD",
		Junk:        []string{"unknown"},
		NoRepeat:    []string{"St. Veronica"},
	})

	assert.Equal(t, "TBD", s.String("Unknown"))
	assert.Equal(t, "TBD", s.String(""))
	assert.Equal(t, "n/a", s.String("n/a"))
	assert.Equal(t, "St. Veronica Health", s.String("St. Veronica St. Veronica Health"))
	assert.Equal(t, "TBD", s.String("TBD TBD"))
	assert.Equal(t, "TBD", s.Placeholder())
}

func TestSanitize_Idempotent(t *testing.T) {
	s := New(Config{})
	rng := rand.New(rand.NewSource(7))
	vocab := []string{"Omega", "omega", "Not", "Available", "n/a", "flow", "patient", " ", "???", "Health", "very", ","}

	for i := 0; i < 500; i++ {
		var parts []string
		for j := rng.Intn(12); j >= 0; j-- {
			parts = append(parts, vocab[rng.Intn(len(vocab))])
		}
		in := strings.Join(parts, " ")
		once := s.String(in)
		assert.Equal(t, once, s.String(once), "input %q", in)
	}

	tree := map[string]any{
		"a": []any{"Omega Omega", nil, "  x  ", map[string]any{"b": "n/a n/a n/a"}},
		"c": "very very very good",
	}
	once := s.Sanitize(tree)
	if diff := cmp.Diff(once, s.Sanitize(once)); diff != "" {
		t.Errorf("sanitize is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestIsJunk(t *testing.T) {
	s := New(Config{})
	assert.True(t, s.IsJunk(" N/A "))
	assert.True(t, s.IsJunk("not available"))
	assert.False(t, s.IsJunk("Healthy"))
	for _, junk := range domain.DefaultJunk {
		assert.True(t, s.IsJunk(junk), junk)
	}
}
