package paypal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateOrder opens a fiat order for the given amount. No money moves until
// the order is captured, so an abandoned order needs no compensation.
func (s *Service) CreateOrder(ctx context.Context, amount decimal.Decimal) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", fmt.Errorf("order amount must be positive, got %s", amount)
	}

	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]string{
					"currency_code": s.currency,
					"value":         amount.StringFixed(2),
				},
			},
		},
	}

	var payload struct {
		Id string `json:"id"`
	}
	if err := s.postJSON(ctx, "/v2/checkout/orders", body, nil, &payload); err != nil {
		return "", fmt.Errorf("createOrder: %w", err)
	}
	if payload.Id == "" {
		return "", fmt.Errorf("createOrder: processor returned no order id")
	}

	zap.L().Info("Fiat order created",
		zap.String("order_id", payload.Id),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", s.currency))
	return payload.Id, nil
}

// CaptureOrder captures an approved order and returns the capture id and
// the exact captured amount. The capture id is the refund target if the
// mint leg later fails.
func (s *Service) CaptureOrder(ctx context.Context, orderId string) (string, decimal.Decimal, error) {
	if orderId == "" {
		return "", decimal.Zero, fmt.Errorf("order id cannot be empty")
	}

	var payload struct {
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					Id     string `json:"id"`
					Amount struct {
						Value string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", orderId)
	if err := s.postJSON(ctx, path, nil, nil, &payload); err != nil {
		return "", decimal.Zero, fmt.Errorf("captureOrder(%s): %w", orderId, err)
	}

	if len(payload.PurchaseUnits) == 0 || len(payload.PurchaseUnits[0].Payments.Captures) == 0 {
		return "", decimal.Zero, fmt.Errorf("captureOrder(%s): no capture in processor response", orderId)
	}

	capture := payload.PurchaseUnits[0].Payments.Captures[0]
	captured, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("captureOrder(%s): invalid captured amount %q: %w",
			orderId, capture.Amount.Value, err)
	}

	zap.L().Info("Fiat order captured",
		zap.String("order_id", orderId),
		zap.String("capture_id", capture.Id),
		zap.String("captured_amount", captured.String()))
	return capture.Id, captured, nil
}

// Refund returns a captured amount to the buyer. The capture id is the
// refund target; a full refund needs no amount in the request body.
func (s *Service) Refund(ctx context.Context, captureId string) (string, error) {
	if captureId == "" {
		return "", fmt.Errorf("capture id cannot be empty")
	}

	var payload struct {
		Id string `json:"id"`
	}
	path := fmt.Sprintf("/v2/payments/captures/%s/refund", captureId)
	if err := s.postJSON(ctx, path, nil, nil, &payload); err != nil {
		return "", fmt.Errorf("refund(%s): %w", captureId, err)
	}

	zap.L().Info("Capture refunded",
		zap.String("capture_id", captureId),
		zap.String("refund_id", payload.Id))
	return payload.Id, nil
}
