package api

import (
	"net/http"

	"settlement-bridge-go/internal/chain"
	"settlement-bridge-go/internal/indexer"
	"settlement-bridge-go/internal/reconciler"
	"settlement-bridge-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface.
func NewRouter(rec *reconciler.Service, idx *indexer.Service, ch *chain.Service, st store.SettlementStore) http.Handler {
	h := &Handlers{
		svc:        NewSettlementService(rec, idx, st),
		reconciler: rec,
		indexer:    idx,
		chain:      ch,
		store:      st,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/{id}/confirm", h.ConfirmPurchase)
			r.Get("/{id}", h.GetPurchase)
		})
		r.Route("/merchants", func(r chi.Router) {
			r.Post("/", h.RegisterMerchant)
			r.Get("/{id}/purchases", h.ListMerchantPurchases)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Post("/{orderId}/complete", h.CompleteOrder)
			r.Get("/{orderId}", h.GetOrder)
		})
		r.Get("/transactions/{txHash}/purchase", h.GetTransactionPurchase)
		r.Get("/failures", h.ListFailures)
	})

	return r
}
