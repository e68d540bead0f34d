package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotificationPublisher публикует уведомления о событиях оплаты.
// Отправка выполняется по принципу best-effort: ошибка публикации
// логируется вызывающей стороной и не откатывает обработку события.
type NotificationPublisher struct {
	ch *amqp.Channel
}

// NewNotificationPublisher создаёт издателя уведомлений поверх канала.
func NewNotificationPublisher(ch *amqp.Channel) *NotificationPublisher {
	return &NotificationPublisher{ch: ch}
}

// PublishSubscriptionConfirmation отправляет уведомление о подтверждении подписки.
func (p *NotificationPublisher) PublishSubscriptionConfirmation(msg models.SubscriptionNotification) error {
	return PublishMessage(p.ch, NotificationsExchange, QueueSubscriptionConfirmed, msg)
}

// PublishPurchaseReceipt отправляет уведомление с чеком за разовую покупку.
func (p *NotificationPublisher) PublishPurchaseReceipt(msg models.PurchaseNotification) error {
	return PublishMessage(p.ch, NotificationsExchange, QueuePurchaseReceipt, msg)
}
