package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/propdesk/propdesk/internal/models"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Enabled    bool
	Host       string
	Port       int
	User       string
	Password   string
	AuthType   string // "plain" or "login"
	TLS        bool
	SkipVerify bool
	From       string
}

// UserDirectory resolves a user identifier to a deliverable email address.
// Owned by the console's user store; injected as a collaborator.
type UserDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// SMTPDispatcher delivers escalation notices by email.
type SMTPDispatcher struct {
	cfg       SMTPConfig
	directory UserDirectory
}

// NewSMTPDispatcher creates an email dispatcher over the given directory.
func NewSMTPDispatcher(cfg SMTPConfig, directory UserDirectory) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg, directory: directory}
}

// Dispatch looks up the target's address and sends the escalation notice.
func (d *SMTPDispatcher) Dispatch(ctx context.Context, event models.EscalationEvent) error {
	if !d.cfg.Enabled {
		return nil // email channel disabled, silently skip
	}

	to, err := d.directory.EmailFor(ctx, event.EscalatedTo)
	if err != nil {
		return fmt.Errorf("resolve address for %s: %w", event.EscalatedTo, err)
	}

	subject := fmt.Sprintf("[PropDesk] Escalation: %s (%s)", event.EntityTitle, event.EntityType)
	body := fmt.Sprintf("Entity: %s %s\r\nReason: %s\r\nRaised: %s\r\n\r\n"+
		"Acknowledge this escalation in the console to clear it.",
		event.EntityType, event.EntityID, event.Reason, event.CreatedAt.Format("2006-01-02 15:04 MST"))
	message := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body)

	return d.send(to, message)
}

func (d *SMTPDispatcher) send(to, message string) error {
	var auth smtp.Auth
	if d.cfg.User != "" && d.cfg.Password != "" {
		switch d.cfg.AuthType {
		case "login":
			auth = &loginAuth{username: d.cfg.User, password: d.cfg.Password}
		default:
			auth = smtp.PlainAuth("", d.cfg.User, d.cfg.Password, d.cfg.Host)
		}
	}

	addr := d.cfg.Host + ":" + strconv.Itoa(d.cfg.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if d.cfg.TLS {
		tlsConfig := &tls.Config{
			ServerName:         d.cfg.Host,
			InsecureSkipVerify: d.cfg.SkipVerify,
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(d.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err = w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}

	return client.Quit()
}

// loginAuth implements SMTP LOGIN authentication
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch string(fromServer) {
		case "Username:":
			return []byte(a.username), nil
		case "Password:":
			return []byte(a.password), nil
		default:
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}
