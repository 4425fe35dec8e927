package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/observability/metrics"
	"github.com/aryan0dhankhar/queueline/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/queueline/internal/reliability/retry"
)

var templates = template.Must(template.New("joined").Parse(`<h2>You're in the queue for {{.QueueName}}</h2>
<p>Hi {{.CustomerName}},</p>
<p>Your token is <strong>{{.DisplayCode}}</strong>.</p>
<p>Position: <strong>{{.Position}}</strong><br>Estimated wait: <strong>{{.EstimatedWait}}</strong></p>
<p>We'll let you know when it's your turn.</p>`))

func init() {
	template.Must(templates.New("message").Parse(`<h2>{{.QueueName}}</h2>
<p>Hi {{.CustomerName}} ({{.DisplayCode}}),</p>
<p>{{.Message}}</p>`))
}

// Mailer implements domain.Notifier on top of a Sender, with retries behind a circuit breaker.
type Mailer struct {
	sender  Sender
	from    string
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
	logger  *slog.Logger
}

func NewMailer(sender Sender, from string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mailer"), slog.String("provider", sender.Name()))
	cb := circuitbreaker.NewCircuitBreaker(5, 1, 30*time.Second)
	cb.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("mail circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &Mailer{
		sender:  sender,
		from:    from,
		breaker: cb,
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
}

func (m *Mailer) NotifyJoined(ctx context.Context, n domain.JoinNotice) error {
	html, err := render("joined", n)
	if err != nil {
		return err
	}
	return m.deliver(ctx, "joined", Message{
		From:    m.from,
		To:      n.Email,
		Subject: fmt.Sprintf("You're #%d in line at %s", n.Position, n.QueueName),
		HTML:    html,
	})
}

func (m *Mailer) NotifyMessage(ctx context.Context, n domain.MessageNotice) error {
	html, err := render("message", n)
	if err != nil {
		return err
	}
	subject := n.Subject
	if subject == "" {
		subject = "Update from " + n.QueueName
	}
	return m.deliver(ctx, "message", Message{
		From:    m.from,
		To:      n.Email,
		Subject: subject,
		HTML:    html,
	})
}

func (m *Mailer) deliver(ctx context.Context, kind string, msg Message) error {
	if msg.To == "" {
		return retry.Permanent(domain.ErrEmailRequired)
	}
	_, err := retry.Do(ctx, m.retry, m.logger, "send "+kind+" email", func(ctx context.Context) (struct{}, error) {
		err := m.breaker.Execute(func() error { return m.sender.Send(ctx, msg) })
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return struct{}{}, retry.Permanent(err)
		}
		return struct{}{}, err
	})
	if err != nil {
		metrics.ObserveNotification(kind, "error")
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	metrics.ObserveNotification(kind, "ok")
	return nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}
