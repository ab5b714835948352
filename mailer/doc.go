// Package mailer renders and delivers the account mail authcore sends:
// verification prompts, account recovery prompts and the notice sent after
// refresh token reuse forced a sign-out.
//
// Templates live in a TOML catalogue ([DefaultCatalog] is embedded) and are
// rendered with html/template. [SMTPNotifier] delivers over SMTP with go-mail;
// [LogNotifier] only logs and is meant for development.
package mailer
