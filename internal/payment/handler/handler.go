package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"transitpass/internal/payment/service"
	id "transitpass/pkg/domain"
	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/httputil"
	"transitpass/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

type Service interface {
	CreateOrder(ctx context.Context, caller id.Caller, amount int64) (*service.Order, error)
	VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (*service.Receipt, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Protected mounts order creation.
func (h *Handler) Protected(r chi.Router) {
	r.Post("/payment/create-order", h.HandleCreateOrder)
}

// Public mounts verification. It is authenticated by the provider signature
// rather than a bearer token.
func (h *Handler) Public(r chi.Router) {
	r.Post("/payment/verify", h.HandleVerify)
}

func (h *Handler) Admin(chi.Router) {}

// CreateOrderRequest carries the amount in major currency units.
type CreateOrderRequest struct {
	Amount int64 `json:"amount"`
}

func (r *CreateOrderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

type CreateOrderResponse struct {
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	RecordID    int64  `json:"record_id"`
}

// VerifyRequest uses the field names the checkout widget posts back.
type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.PaymentID = strings.TrimSpace(r.PaymentID)
	r.Signature = strings.TrimSpace(r.Signature)
	if r.OrderID == "" || r.PaymentID == "" || r.Signature == "" {
		return dErrors.New(dErrors.CodeValidation, "razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	return nil
}

type VerifyResponse struct {
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Kind      string `json:"kind"`
	ValidTo   string `json:"valid_to"`
}

// HandleCreateOrder handles POST /payment/create-order.
func (h *Handler) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreateOrderRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	order, err := h.service.CreateOrder(ctx, requestcontext.Caller(ctx), req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "create order failed",
			"request_id", requestID,
			"user_id", requestcontext.UserID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CreateOrderResponse{
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Key:         order.KeyID,
		Kind:        order.Kind,
		RecordID:    order.RecordID,
	})
}

// HandleVerify handles POST /payment/verify. The signature authenticates the
// call, so no bearer token is required.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	receipt, err := h.service.VerifyPayment(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.logger.WarnContext(ctx, "payment verification failed",
			"request_id", requestID,
			"order_id", req.OrderID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Status:    "success",
		OrderID:   receipt.OrderID,
		PaymentID: receipt.PaymentID,
		Kind:      receipt.Kind,
		ValidTo:   receipt.ValidTo.Format(time.DateOnly),
	})
}
