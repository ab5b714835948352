package mailer

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authcore"
)

// LogNotifier renders messages and logs them instead of sending. The body,
// which carries the raw token link, is logged at debug level only.
type LogNotifier struct {
	logger  *slog.Logger
	links   Links
	catalog *Catalog
}

var _ authcore.MailNotifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger, links Links) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, links: links, catalog: DefaultCatalog()}
}

func (n *LogNotifier) SendVerificationPrompt(ctx context.Context, email, token string) error {
	msg, err := n.catalog.Verification(n.links, email, token)
	if err != nil {
		return err
	}
	n.log(ctx, msg)
	return nil
}

func (n *LogNotifier) SendAccountRecoveryPrompt(ctx context.Context, email, name, token string) error {
	msg, err := n.catalog.AccountRecovery(n.links, email, name, token)
	if err != nil {
		return err
	}
	n.log(ctx, msg)
	return nil
}

func (n *LogNotifier) SendTokenReusedMail(ctx context.Context, email, name string) error {
	msg, err := n.catalog.TokenReused(n.links, email, name)
	if err != nil {
		return err
	}
	n.log(ctx, msg)
	return nil
}

func (n *LogNotifier) log(ctx context.Context, msg Message) {
	n.logger.InfoContext(ctx, "sending fake mail", "to", msg.To, "subject", msg.Subject)
	n.logger.DebugContext(ctx, "fake mail body", "to", msg.To, "html", msg.HTML)
}
