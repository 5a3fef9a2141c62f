package mail

import (
	"context"
	"log/slog"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunSender отправляет письма через Mailgun API.
type MailgunSender struct {
	mg     *mailgun.MailgunImpl
	from   string
	logger *slog.Logger
}

// NewMailgunSender создаёт отправителя Mailgun.
// apiBase — необязательный адрес API (пустая строка — адрес по умолчанию).
func NewMailgunSender(domain, apiKey, from, apiBase string, logger *slog.Logger) *MailgunSender {
	mg := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		mg.SetAPIBase(apiBase)
	}
	return &MailgunSender{
		mg:     mg,
		from:   from,
		logger: logger.With(slog.String("component", "mailgun")),
	}
}

// Send отправляет письмо.
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	message := s.mg.NewMessage(s.from, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}

	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return err
	}

	s.logger.Debug("Письмо принято Mailgun",
		slog.String("id", id),
		slog.String("response", resp),
	)
	return nil
}

// LogSender записывает письма в лог вместо отправки.
// Используется, когда Mailgun не настроен.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "mail"))}
}

// Send логирует письмо.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("Mailgun не настроен, письмо не отправлено",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
