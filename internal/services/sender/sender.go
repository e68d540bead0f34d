// Package sender отправляет письма-уведомления, полученные из очереди:
// подтверждение подписки и чек за разовую покупку.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/smtp"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// Service потребляет сообщения очередей уведомлений и отправляет письма.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый Service.
func New(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendSubscriptionConfirmation обрабатывает сообщение о подтверждении подписки.
func (s *Service) SendSubscriptionConfirmation(body []byte) error {
	var message models.SubscriptionNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Your subscription is active"
	text := fmt.Sprintf("Hi %s,\r\n\r\nYour %s subscription is now active. "+
		"You have unlimited access to all premium study resources.\r\n", message.Name, message.Plan)
	return s.send(message.Email, subject, text)
}

// SendPurchaseReceipt обрабатывает сообщение с чеком за разовую покупку.
func (s *Service) SendPurchaseReceipt(body []byte) error {
	var message models.PurchaseNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Your purchase receipt"
	text := fmt.Sprintf("Hi %s,\r\n\r\nThanks for purchasing %q. "+
		"Amount charged: $%d.%02d. The resource is now available in your library.\r\n",
		message.Name, message.ResourceTitle, message.AmountCents/100, message.AmountCents%100)
	return s.send(message.Email, subject, text)
}

func (s *Service) send(to, subject, text string) error {
	const op = "sender.send"

	client, err := s.transport.Connect()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := client.Quit(); err != nil {
			s.log.Warn("failed to quit smtp session", sl.Err(err))
		}
	}()

	from := s.transport.GetSMTPUser()
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(text)

	if _, err := wc.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("notification email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}
