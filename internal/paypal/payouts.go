package paypal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payout transfers funds from the platform account to the receiver's payout
// handle. The idempotency key is sent both as the request-dedup header and
// as the batch id, so a retried call returns the original batch instead of
// paying twice.
func (s *Service) Payout(ctx context.Context, receiver string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	if receiver == "" {
		return "", fmt.Errorf("payout receiver cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("payout amount must be positive, got %s", amount)
	}
	if idempotencyKey == "" {
		return "", fmt.Errorf("payout idempotency key cannot be empty")
	}

	body := map[string]any{
		"sender_batch_header": map[string]string{
			"sender_batch_id": idempotencyKey,
		},
		"items": []map[string]any{
			{
				"recipient_type": "EMAIL",
				"receiver":       receiver,
				"amount": map[string]string{
					"currency": s.currency,
					"value":    amount.StringFixed(2),
				},
				"sender_item_id": idempotencyKey,
			},
		},
	}
	headers := map[string]string{"PayPal-Request-Id": idempotencyKey}

	var payload struct {
		BatchHeader struct {
			PayoutBatchId string `json:"payout_batch_id"`
		} `json:"batch_header"`
	}
	if err := s.postJSON(ctx, "/v1/payments/payouts", body, headers, &payload); err != nil {
		return "", fmt.Errorf("payout to %s: %w", receiver, err)
	}

	zap.L().Info("Payout submitted",
		zap.String("receiver", receiver),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("idempotency_key", idempotencyKey),
		zap.String("payout_batch_id", payload.BatchHeader.PayoutBatchId))
	return payload.BatchHeader.PayoutBatchId, nil
}
