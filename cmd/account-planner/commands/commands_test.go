package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/account-planner/internal/app"
	"github.com/spherical/account-planner/internal/config"
	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/extract"
	"github.com/spherical/account-planner/internal/observability"
)

func withConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = config.DefaultConfig()
	cfg.Render.OutputDir = t.TempDir()
	t.Cleanup(func() { cfg = prev })
}

func TestUniqueName(t *testing.T) {
	claimed := map[string]bool{}

	assert.Equal(t, "Acme_Account_Plan_v1_locked.docx", uniqueName(claimed, "Acme_Account_Plan_v1_locked.docx"))
	assert.Equal(t, "Acme_Account_Plan_v1_locked_2.docx", uniqueName(claimed, "Acme_Account_Plan_v1_locked.docx"))
	assert.Equal(t, "Acme_Account_Plan_v1_locked_3.docx", uniqueName(claimed, "Acme_Account_Plan_v1_locked.docx"))
	assert.Equal(t, "Other.docx", uniqueName(claimed, "Other.docx"))
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.txt", "c.exe", "d.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.txt"), 0o755))
	single := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	inputs, err := collectInputs([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "d.docx"),
		single,
	}, inputs)

	_, err = collectInputs([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	withConfig(t)

	t.Run("default dir", func(t *testing.T) {
		path, err := outputPath("", "plan.docx")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(cfg.Render.OutputDir, "plan.docx"), path)
	})

	t.Run("explicit file", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "sub", "mine.docx")
		path, err := outputPath(want, "plan.docx")
		require.NoError(t, err)
		assert.Equal(t, want, path)
		assert.DirExists(t, filepath.Dir(want))
	})

	t.Run("explicit dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		path, err := outputPath(dir, "plan.docx")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "plan.docx"), path)
		assert.DirExists(t, dir)
	})
}

func TestResolveSource(t *testing.T) {
	a := &app.App{Extractor: extract.New(extract.Config{}, observability.Nop())}

	src, err := resolveSource(a, nil, "Acme <b>pasted</b> notes")
	require.NoError(t, err)
	assert.Equal(t, "Acme pasted notes", src.Text)

	src, err = resolveSource(a, []string{"docs/acme.pdf"}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.Source{Path: "docs/acme.pdf", Filename: "acme.pdf"}, src)

	_, err = resolveSource(a, []string{"docs/acme.pdf"}, "text")
	assert.Error(t, err)

	_, err = resolveSource(a, nil, "")
	assert.Error(t, err)
}

func TestReadJSONFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"account_overview":{"account_name":"Acme","seats":12}}`), 0o644))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"account_overview":`), 0o644))

	tree, err := readJSONFile(good)
	require.NoError(t, err)
	overview := tree.(map[string]any)["account_overview"].(map[string]any)
	assert.Equal(t, "Acme", overview["account_name"])
	assert.Equal(t, "12", overview["seats"].(interface{ String() string }).String())

	_, err = readJSONFile(bad)
	assert.Equal(t, domain.ErrorTypeValidation, domain.TypeOf(err))
}

func TestRepairTree(t *testing.T) {
	withConfig(t)

	plan, report, s, err := repairTree(map[string]any{
		"account_overview": map[string]any{"account_name": "Acme", "account_owner": "n/a"},
		"notes":            "kept",
	}, false)
	require.NoError(t, err)
	require.NotNil(t, s)

	section, ok := s.Field("account_overview")
	require.True(t, ok)
	owner, ok := section.Field("account_owner")
	require.True(t, ok)

	overview := plan["account_overview"].(map[string]any)
	assert.Equal(t, "Acme", overview["account_name"])
	assert.Equal(t, owner.Placeholder(), overview["account_owner"])
	assert.Equal(t, "kept", plan["notes"])
	assert.True(t, report.Changed())

	_, _, _, err = repairTree([]any{"not", "an", "object"}, false)
	assert.ErrorIs(t, err, domain.ErrInvalidShape)
}
