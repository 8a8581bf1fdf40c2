package edgar_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/edgar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var body = strings.Repeat("Revenue grew because customers bought more widgets. ", 20)

func filing(mda string) string {
	return `<html><head><style>p { color: red }</style><script>var item = "Item 7";</script></head>
<body>
<p>Item 6. Selected Financial Data</p>
<p>ITEM 7.   Management's Discussion and Analysis</p>
<div><p>` + mda + `</p></div>
<p>Item 7A. Quantitative and Qualitative Disclosures</p>
<p>Item 8. Financial Statements</p>
</body></html>`
}

func TestHTMLToText(t *testing.T) {
	text, err := edgar.HTMLToText(strings.NewReader(filing("hello")))
	require.NoError(t, err)

	assert.Contains(t, text, "Selected Financial Data")
	assert.Contains(t, text, "hello")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "var item")
}

func TestHTMLToText_Empty(t *testing.T) {
	_, err := edgar.HTMLToText(strings.NewReader("<html><body><script>x()</script></body></html>"))
	assert.ErrorIs(t, err, edgar.ErrNoText)
}

func TestExtractMDA(t *testing.T) {
	text, err := edgar.HTMLToText(strings.NewReader(filing(body)))
	require.NoError(t, err)

	section, ok := edgar.ExtractMDA(text)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(section, "ITEM 7. Management's Discussion"))
	assert.Contains(t, section, "customers bought more widgets.")
	assert.NotContains(t, section, "Quantitative")
	assert.NotContains(t, section, "  ")
}

func TestExtractMDA_EndsAtItem8(t *testing.T) {
	section, ok := edgar.ExtractMDA("intro item 7 discussion here item 8 statements")
	require.True(t, ok)
	assert.Equal(t, "item 7 discussion here", section)
}

func TestExtractMDA_NotFound(t *testing.T) {
	_, ok := edgar.ExtractMDA("Item 1. Business. Item 2. Properties.")
	assert.False(t, ok)

	_, ok = edgar.ExtractMDA("Item 7. Discussion without an end marker")
	assert.False(t, ok)
}

func TestProcessFile_EmitsConfig(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "acme-10k.htm")
	require.NoError(t, os.WriteFile(in, []byte(filing(body)), 0644))

	out := filepath.Join(dir, "out", "acme_mda.txt")
	cfgPath := filepath.Join(dir, "acme.toml")
	ok, err := edgar.ProcessFile(in, out, edgar.Options{EmitConfig: cfgPath, Model: "qwen2.5:7b"})
	require.NoError(t, err)
	require.True(t, ok)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "widgets")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "qwen2.5:7b", cfg.Models[0].Name)
	assert.Equal(t, []string{"acme_mda"}, cfg.Models[0].Prompts)

	p := cfg.Prompts["acme_mda"]
	assert.Equal(t, filepath.ToSlash(out), p.PromptFile)
	require.NotNil(t, p.System)
	assert.Equal(t, edgar.AnalystSystem, *p.System)
}

func TestProcessFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "empty.htm")
	require.NoError(t, os.WriteFile(in, []byte("<p>Item 1. Business</p>"), 0644))

	out := filepath.Join(dir, "mda.txt")
	ok, err := edgar.ProcessFile(in, out, edgar.Options{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, out)
}

func TestProcessPath_Directory(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.htm"), []byte(filing(body)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "b.html"), []byte(filing("short")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "c.htm"), []byte("<p>nothing</p>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.md"), []byte("Item 7 x Item 8"), 0644))

	out := filepath.Join(t.TempDir(), "mda")
	n, err := edgar.ProcessPath(in, out, edgar.Options{EmitConfig: filepath.Join(out, "ignored.toml")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(out, "a_MD-and-A.txt"))
	assert.FileExists(t, filepath.Join(out, "b_MD-and-A.txt"))
	assert.NoFileExists(t, filepath.Join(out, "c_MD-and-A.txt"))
	assert.NoFileExists(t, filepath.Join(out, "ignored.toml"))
}

func TestProcessPath_MissingInput(t *testing.T) {
	_, err := edgar.ProcessPath(filepath.Join(t.TempDir(), "nope"), "out", edgar.Options{})
	assert.Error(t, err)
}
