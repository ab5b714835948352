package mailer

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Template keys in the catalogue.
const (
	KeyVerification    = "verification"
	KeyAccountRecovery = "account_recovery"
	KeyTokenReused     = "token_reused"
)

//go:embed templates.toml
var defaultCatalog []byte

type templateSource struct {
	Subject string `toml:"subject"`
	HTML    string `toml:"html"`
}

type compiled struct {
	subject string
	html    *template.Template
}

// Catalog holds the parsed message templates.
type Catalog struct {
	templates map[string]compiled
}

// Message is a rendered mail ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type templateData struct {
	SiteName string
	Name     string
	URL      string
}

// DefaultCatalog returns the embedded catalogue.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic("mailer: embedded catalogue: " + err.Error())
	}
	return c
}

// LoadCatalog reads a TOML catalogue from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a TOML catalogue. All three keys must be present.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]templateSource
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	c := &Catalog{templates: make(map[string]compiled, len(raw))}
	for _, key := range []string{KeyVerification, KeyAccountRecovery, KeyTokenReused} {
		src, ok := raw[key]
		if !ok || strings.TrimSpace(src.Subject) == "" {
			return nil, fmt.Errorf("catalogue entry %q missing or has no subject", key)
		}
		tmpl, err := template.New(key).Option("missingkey=error").Parse(src.HTML)
		if err != nil {
			return nil, fmt.Errorf("catalogue entry %q: %w", key, err)
		}
		c.templates[key] = compiled{subject: src.Subject, html: tmpl}
	}
	return c, nil
}

func (c *Catalog) render(key, to string, data templateData) (Message, error) {
	t, ok := c.templates[key]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", key)
	}

	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", key, err)
	}

	return Message{
		To:      to,
		Subject: t.subject,
		HTML:    strings.TrimSpace(buf.String()),
	}, nil
}

// Links builds the URLs embedded in prompts from the site origin.
type Links struct {
	SiteOrigin string
	SiteName   string
}

func (l Links) origin() string {
	return strings.TrimSuffix(l.SiteOrigin, "/")
}

// VerifyURL is the page that confirms an account with token.
func (l Links) VerifyURL(token string) string {
	return l.origin() + "/auth/verify-account/" + token
}

// ResetURL is the page that sets a new password with token.
func (l Links) ResetURL(token string) string {
	return l.origin() + "/auth/reset-password/" + token
}

// Verification renders the verification prompt.
func (c *Catalog) Verification(links Links, to, token string) (Message, error) {
	return c.render(KeyVerification, to, templateData{SiteName: links.SiteName, URL: links.VerifyURL(token)})
}

// AccountRecovery renders the password reset prompt.
func (c *Catalog) AccountRecovery(links Links, to, name, token string) (Message, error) {
	return c.render(KeyAccountRecovery, to, templateData{SiteName: links.SiteName, Name: name, URL: links.ResetURL(token)})
}

// TokenReused renders the forced sign-out notice.
func (c *Catalog) TokenReused(links Links, to, name string) (Message, error) {
	return c.render(KeyTokenReused, to, templateData{SiteName: links.SiteName, Name: name})
}
