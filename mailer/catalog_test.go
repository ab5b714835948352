package mailer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLinks = Links{SiteOrigin: "https://example.com/", SiteName: "Example"}

func TestDefaultCatalog_Verification(t *testing.T) {
	msg, err := DefaultCatalog().Verification(testLinks, "alice@example.com", "abc123")

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Verify your account", msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://example.com/auth/verify-account/abc123"`)
	assert.Contains(t, msg.HTML, "Welcome to Example!")
}

func TestDefaultCatalog_AccountRecovery(t *testing.T) {
	msg, err := DefaultCatalog().AccountRecovery(testLinks, "alice@example.com", "Alice", "tok")

	require.NoError(t, err)
	assert.Equal(t, "Recover your account", msg.Subject)
	assert.Contains(t, msg.HTML, "Hello Alice")
	assert.Contains(t, msg.HTML, `href="https://example.com/auth/reset-password/tok"`)
}

func TestDefaultCatalog_TokenReused(t *testing.T) {
	msg, err := DefaultCatalog().TokenReused(testLinks, "alice@example.com", "Alice")

	require.NoError(t, err)
	assert.Equal(t, "We've logged you out", msg.Subject)
	assert.Contains(t, msg.HTML, "suspicious activity")
}

func TestCatalog_EscapesName(t *testing.T) {
	msg, err := DefaultCatalog().TokenReused(testLinks, "x@example.com", "<script>")

	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestParseCatalog_MissingEntry(t *testing.T) {
	_, err := ParseCatalog([]byte(`
[verification]
subject = "v"
html = "x"
`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_recovery")
}

func TestParseCatalog_BadTemplate(t *testing.T) {
	data := `
[verification]
subject = "v"
html = "{{.URL"
[account_recovery]
subject = "r"
html = "x"
[token_reused]
subject = "t"
html = "x"
`
	_, err := ParseCatalog([]byte(data))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mail.toml")
	data := `
[verification]
subject = "Confirm"
html = "<a href=\"{{.URL}}\">go</a>"
[account_recovery]
subject = "Reset"
html = "{{.Name}} {{.URL}}"
[token_reused]
subject = "Bye"
html = "{{.Name}}"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	msg, err := c.Verification(Links{SiteOrigin: "http://localhost:3000"}, "a@example.com", "t1")
	require.NoError(t, err)
	assert.Equal(t, "Confirm", msg.Subject)
	assert.Equal(t, `<a href="http://localhost:3000/auth/verify-account/t1">go</a>`, msg.HTML)
}
