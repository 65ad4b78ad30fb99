package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/indexer"
	"settlement-bridge-go/internal/models"
	"settlement-bridge-go/internal/reconciler"
	"settlement-bridge-go/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	svc        *SettlementService
	reconciler *reconciler.Service
	indexer    *indexer.Service
	chain      *chain.Service
	store      store.SettlementStore
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("Failed to encode API response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- purchases ---

func (h *Handlers) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseId := chi.URLParam(r, "id")
	result := h.svc.ConfirmPurchase(r.Context(), purchaseId)

	status := http.StatusOK
	if result.Status == models.StatusFailed {
		status = http.StatusConflict
	} else if result.Status == models.StatusProcessing {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *Handlers) GetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseId := chi.URLParam(r, "id")

	record, err := h.indexer.GetPurchaseByID(r.Context(), purchaseId)
	if err != nil {
		if errors.Is(err, indexer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "purchase not found")
			return
		}
		zap.L().Error("Purchase lookup failed", zap.String("purchase_id", purchaseId), zap.Error(err))
		writeError(w, http.StatusBadGateway, "indexer unavailable")
		return
	}

	writeJSON(w, http.StatusOK, PurchaseView(record))
}

func (h *Handlers) ListMerchantPurchases(w http.ResponseWriter, r *http.Request) {
	merchantId := chi.URLParam(r, "id")
	first := parseIntDefault(r.URL.Query().Get("limit"), 20)
	skip := parseIntDefault(r.URL.Query().Get("offset"), 1) - 1

	records, err := h.indexer.ListPurchasesByMerchant(r.Context(), merchantId, first, skip)
	if err != nil {
		zap.L().Error("Merchant purchase listing failed", zap.String("merchant_id", merchantId), zap.Error(err))
		writeError(w, http.StatusBadGateway, "indexer unavailable")
		return
	}

	views := make([]models.PurchaseView, 0, len(records))
	for i := range records {
		views = append(views, PurchaseView(&records[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": views})
}

// GetTransactionPurchase resolves a mined swap transaction to the purchase
// it recorded, straight from the receipt. This is how a buyer's client gets
// the purchase id immediately after the swap, before the indexer has
// materialized the row.
func (h *Handlers) GetTransactionPurchase(w http.ResponseWriter, r *http.Request) {
	txHash := chi.URLParam(r, "txHash")
	if len(txHash) != 66 || txHash[:2] != "0x" {
		writeError(w, http.StatusBadRequest, "invalid transaction hash")
		return
	}

	event, err := h.chain.ReadPurchaseEvent(r.Context(), common.HexToHash(txHash))
	if err != nil {
		zap.L().Warn("Purchase event lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		writeError(w, http.StatusNotFound, "no purchase recorded by this transaction")
		return
	}

	writeJSON(w, http.StatusOK, models.PurchaseView{
		Id:             event.Id,
		PayerAddress:   event.PayerAddress.Hex(),
		MerchantId:     event.MerchantId,
		TokenContract:  event.TokenContract.Hex(),
		TokenAmount:    event.TokenAmount,
		FiatAmountPaid: event.FiatAmountPaid,
		FiatAmountOwed: event.FiatAmountOwed,
		Status:         models.StatusProcessing,
	})
}

// --- merchants ---

func (h *Handlers) RegisterMerchant(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Id == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "id and email are required")
		return
	}

	if err := h.reconciler.RegisterMerchant(r.Context(), req.Id, req.Name, req.Email); err != nil {
		zap.L().Error("Merchant registration failed", zap.String("merchant_id", req.Id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "merchant registration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"merchant_id": req.Id, "status": models.StatusCompleted})
}

// --- orders ---

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if !common.IsHexAddress(req.Destination) {
		writeError(w, http.StatusBadRequest, "invalid destination address")
		return
	}

	order, err := h.reconciler.BuyToken(r.Context(), req.Amount, common.HexToAddress(req.Destination))
	if err != nil {
		zap.L().Error("Order creation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "order creation failed")
		return
	}

	writeJSON(w, http.StatusCreated, models.OrderResult{
		OrderId: order.Id,
		Status:  models.StatusProcessing,
	})
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderId := chi.URLParam(r, "orderId")

	order, err := h.reconciler.CompleteTokenPurchase(r.Context(), orderId)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if reconciler.IsFatal(err) {
			writeJSON(w, http.StatusConflict, models.OrderResult{
				OrderId: orderId,
				Status:  models.StatusFailed,
				Error:   "failed; contact support",
			})
			return
		}
		zap.L().Error("Order completion failed", zap.String("order_id", orderId), zap.Error(err))
		writeJSON(w, http.StatusAccepted, models.OrderResult{
			OrderId: orderId,
			Status:  models.StatusProcessing,
		})
		return
	}

	writeJSON(w, http.StatusOK, models.OrderResult{
		OrderId: order.Id,
		Status:  OrderStatus(order),
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderId := chi.URLParam(r, "orderId")

	order, err := h.store.GetMintOrder(r.Context(), orderId)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		zap.L().Error("Order lookup failed", zap.String("order_id", orderId), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "order lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, models.OrderResult{
		OrderId: order.Id,
		Status:  OrderStatus(order),
	})
}

// --- failures ---

func (h *Handlers) ListFailures(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 1) - 1

	failures, err := h.store.ListFailures(r.Context(), limit, offset)
	if err != nil {
		zap.L().Error("Failure listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failure listing failed")
		return
	}
	if failures == nil {
		failures = []models.SettlementFailure{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"failures": failures})
}

// --- health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
