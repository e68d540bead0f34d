package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ошибки проверки подписи webhook.
var (
	ErrInvalidSignatureHeader = errors.New("invalid signature header")
	ErrSignatureMismatch      = errors.New("signature mismatch")
	ErrTimestampTooOld        = errors.New("signature timestamp outside tolerance")
)

// VerifySignature проверяет заголовок Stripe-Signature формата "t=...,v1=...".
// Подпись — HMAC-SHA256 от строки "<timestamp>.<body>" на секрете endpoint'а.
// Сравнение выполняется в постоянном времени; допускается несколько значений v1.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	var timestamp int64
	var signatures [][]byte

	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return ErrInvalidSignatureHeader
		}
		switch parts[0] {
		case "t":
			t, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return ErrInvalidSignatureHeader
			}
			timestamp = t
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignatureHeader
	}
	if tolerance > 0 && time.Since(time.Unix(timestamp, 0)) > tolerance {
		return ErrTimestampTooOld
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// SignPayload формирует значение заголовка подписи для тела payload.
// Используется в тестах webhook-обработчика.
func SignPayload(payload []byte, secret string, timestamp time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
