package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/MrEthical07/authcore"
)

// SMTPConfig configures [SMTPNotifier].
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// SMTPNotifier delivers account mail over SMTP.
type SMTPNotifier struct {
	cfg     SMTPConfig
	links   Links
	catalog *Catalog
	send    func(ctx context.Context, msg *mail.Msg) error
}

var _ authcore.MailNotifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier validates cfg. A nil catalog selects [DefaultCatalog].
func NewSMTPNotifier(cfg SMTPConfig, links Links, catalog *Catalog) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}
	if links.SiteOrigin == "" {
		return nil, errors.New("site origin is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	n := &SMTPNotifier{cfg: cfg, links: links, catalog: catalog}
	n.send = n.dialAndSend
	return n, nil
}

func (n *SMTPNotifier) SendVerificationPrompt(ctx context.Context, email, token string) error {
	msg, err := n.catalog.Verification(n.links, email, token)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) SendAccountRecoveryPrompt(ctx context.Context, email, name, token string) error {
	msg, err := n.catalog.AccountRecovery(n.links, email, name, token)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) SendTokenReusedMail(ctx context.Context, email, name string) error {
	msg, err := n.catalog.TokenReused(n.links, email, name)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) deliver(ctx context.Context, m Message) error {
	msg, err := n.buildMsg(m)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
}

func (n *SMTPNotifier) buildMsg(m Message) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if n.cfg.FromName != "" {
		if err := msg.FromFormat(n.cfg.FromName, n.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(n.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
	}

	if n.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Implicit TLS on 465, STARTTLS elsewhere.
		if n.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if n.cfg.Username != "" && n.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}

	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
