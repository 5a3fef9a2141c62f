// Пакет mail — транзакционные письма Borrowbox.
// Шаблоны — handlebars (raymond), доставка — Mailgun
// либо запись в лог, если Mailgun не настроен.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// emailsTotal — количество отправленных писем по результату.
var emailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bb_emails_total",
		Help: "Количество транзакционных писем по результату отправки",
	},
	[]string{"result"},
)

// Message — письмо к отправке.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender — транспорт доставки писем.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier формирует письма из шаблонов и отправляет их через Sender.
type Notifier struct {
	sender  Sender
	timeout time.Duration
	appURL  string
	logger  *slog.Logger
}

// NewNotifier создаёт Notifier.
// timeout ограничивает отправку одного письма, appURL подставляется в шаблоны.
func NewNotifier(sender Sender, timeout time.Duration, appURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		timeout: timeout,
		appURL:  appURL,
		logger:  logger.With(slog.String("component", "mail")),
	}
}

// SendWelcome отправляет приветственное письмо после регистрации.
func (n *Notifier) SendWelcome(ctx context.Context, c *model.Customer) error {
	html, err := renderWelcome(welcomeData{Name: c.Name, Email: c.Email, AppURL: n.appURL})
	if err != nil {
		emailsTotal.WithLabelValues("render_error").Inc()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err = n.sender.Send(ctx, Message{
		To:      c.Email,
		Subject: "Welcome to Borrowbox",
		Text:    fmt.Sprintf("Hi %s, your Borrowbox account is ready. Sign in at %s", c.Name, n.appURL),
		HTML:    html,
	})
	if err != nil {
		emailsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("ошибка отправки приветственного письма: %w", err)
	}

	emailsTotal.WithLabelValues("ok").Inc()
	n.logger.Debug("Приветственное письмо отправлено", slog.String("customer_id", c.ID))
	return nil
}
