package propagation

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cbroglie/mustache"

	"infosync/internal/information/models"
	"infosync/internal/platform/mail"
	audit "infosync/pkg/platform/audit"
	pkgstrings "infosync/pkg/platform/strings"
)

const (
	senderLabel           = "System"
	defaultRecipientLabel = "Administration"
)

//go:embed templates/*.mustache
var templateFS embed.FS

// Mailer is the email side channel.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// NotificationWriter persists composed notifications.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type templates struct {
	subject   *mustache.Template
	body      *mustache.Template
	emailText *mustache.Template
	emailHTML *mustache.Template
}

func loadTemplates() (*templates, error) {
	parse := func(name string) (*mustache.Template, error) {
		raw, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return nil, err
		}
		tmpl, err := mustache.ParseString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		return tmpl, nil
	}
	var (
		t   templates
		err error
	)
	if t.subject, err = parse("subject.mustache"); err != nil {
		return nil, err
	}
	if t.body, err = parse("body.mustache"); err != nil {
		return nil, err
	}
	if t.emailText, err = parse("email.txt.mustache"); err != nil {
		return nil, err
	}
	if t.emailHTML, err = parse("email.html.mustache"); err != nil {
		return nil, err
	}
	return &t, nil
}

// Composer builds the notification for an episode, records its creation and
// emails the interested parties.
type Composer struct {
	notifications NotificationWriter
	auditor       Auditor
	mailer        Mailer
	templates     *templates
	now           func() time.Time
	logger        *slog.Logger
}

type ComposerOption func(*Composer)

func WithMailer(m Mailer) ComposerOption {
	return func(c *Composer) {
		c.mailer = m
	}
}

func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger
	}
}

func WithComposerClock(now func() time.Time) ComposerOption {
	return func(c *Composer) {
		c.now = now
	}
}

func NewComposer(notifications NotificationWriter, auditor Auditor, opts ...ComposerOption) (*Composer, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	c := &Composer{
		notifications: notifications,
		auditor:       auditor,
		templates:     tmpl,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Recipients returns the addresses the notification email goes to: the
// record's override and the linked insurer's address, without duplicates.
func Recipients(ep Episode) []string {
	candidates := []string{ep.Record.NotificationEmail}
	if ep.Insurer != nil {
		candidates = append(candidates, ep.Insurer.Email)
	}
	return pkgstrings.DedupeFold(candidates)
}

// Compose persists a new notification for ep and appends its "created"
// entry. The email side channel is attempted afterwards; its failure is
// audited and never returned.
func (c *Composer) Compose(ctx context.Context, ep Episode) (*models.Notification, error) {
	view := templateView(ep)
	subject, err := c.templates.subject.Render(view)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := c.templates.body.Render(view)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	recipient := defaultRecipientLabel
	if email := strings.TrimSpace(ep.Record.NotificationEmail); email != "" {
		recipient = email
	}
	now := c.now().UTC()
	n := &models.Notification{
		InformationID: ep.Record.ID,
		Subject:       strings.TrimSpace(subject),
		Body:          strings.TrimSpace(body),
		Sender:        senderLabel,
		Recipient:     recipient,
		ComposedAt:    now,
		SentAt:        now,
		Origin:        ep.OriginNotification,
	}
	if err := c.notifications.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	c.auditor.Record(ctx, audit.ActionCreated,
		fmt.Sprintf("notification %q created for information %d, recipient %s", n.Subject, ep.Record.ID, n.Recipient),
		audit.About(n.ID))

	c.sendEmail(ctx, ep, n, view)
	return n, nil
}

func (c *Composer) sendEmail(ctx context.Context, ep Episode, n *models.Notification, view map[string]any) {
	recipients := Recipients(ep)
	if len(recipients) == 0 || c.mailer == nil {
		c.logger.DebugContext(ctx, "no notification email recipients", "information_id", int64(ep.Record.ID))
		return
	}

	view["body"] = n.Body
	msg := mail.Message{To: recipients, Subject: n.Subject}
	var err error
	if msg.Text, err = c.templates.emailText.Render(view); err == nil {
		msg.HTML, err = c.templates.emailHTML.Render(view)
	}
	if err == nil {
		err = c.mailer.Send(ctx, msg)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "notification email failed",
			"notification_id", int64(n.ID),
			"error", err,
		)
		c.auditor.Record(ctx, audit.ActionEmailFailed, "email failed: "+err.Error(), audit.About(n.ID))
		return
	}
	c.auditor.Record(ctx, audit.ActionEmailSent, "email sent to "+strings.Join(recipients, ", "), audit.About(n.ID))
}

func templateView(ep Episode) map[string]any {
	view := map[string]any{
		"information_id":   int64(ep.Record.ID),
		"employee_number":  ep.Record.EmployeeNumber,
		"address":          ep.Record.Address,
		"insurance_number": ep.Record.InsuranceNumber,
		"national_id":      ep.Record.NationalID,
		"person": map[string]any{
			"first_name": ep.Person.FirstName,
			"last_name":  ep.Person.LastName,
			"full_name":  ep.Person.FullName(),
		},
	}
	if ep.Insurer != nil {
		view["insurer"] = map[string]any{"name": ep.Insurer.Name}
	}
	return view
}
