package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-reservations/internal/lock"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/payment"
	"ms-reservations/internal/reservation"
	"ms-reservations/internal/utils"
)

type Handler struct {
	Reservations *reservation.Service
	Payments     *payment.Service
	Logger       *logger.Logger
}

func NewHandler(reservations *reservation.Service, payments *payment.Service, log *logger.Logger) *Handler {
	return &Handler{
		Reservations: reservations,
		Payments:     payments,
		Logger:       log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/reservations", h.CreateReservation)
	r.Get("/api/reservations/{token}", h.GetReservation)
	r.Delete("/api/reservations/{token}", h.CancelReservation)
	r.Get("/api/users/{userId}/reservations", h.GetUserReservations)

	r.Post("/api/payments", h.InitiatePayment)
	r.Get("/api/payments/{paymentId}", h.CheckPaymentStatus)
	r.Post("/api/payments/{paymentId}/retry", h.RetryPayment)
	r.Get("/api/users/{userId}/payments", h.ListUserPayments)

	r.Post("/webhooks/{provider}", h.ProcessWebhook)
}

// statusForError maps domain sentinels to HTTP statuses. Everything
// unmapped is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, lock.ErrResourceBusy):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrInsufficientInventory),
		errors.Is(err, reservation.ErrInsufficientLedgerStock):
		return http.StatusConflict
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, reservation.ErrReservationNotActive),
		errors.Is(err, reservation.ErrReservationExpired),
		errors.Is(err, payment.ErrReservationNotActive),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrRetryLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrFraudBlocked):
		return http.StatusForbidden
	case errors.Is(err, payment.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrProviderFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	h.writeJSON(w, statusForError(err), utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: invalid body: %v", err))
		http.Error(w, "Invalid reservation JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Reservations.Reserve(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: %v", err))
		h.writeError(w, "Could not create reservation", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("reservation created", models.ReservationResponse{
		Token:     res.Token,
		EventID:   res.EventID,
		Quantity:  res.Quantity,
		ExpiresAt: res.ExpiresAt,
	}))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	res, err := h.Reservations.GetReservation(r.Context(), token)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReservation: %v", err))
		h.writeError(w, "Reservation not found", err)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	h.Logger.Info("API", fmt.Sprintf("CancelReservation: token=%s", token))

	if err := h.Reservations.CancelReservation(r.Context(), token, models.CancelReasonUser); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelReservation: %v", err))
		h.writeError(w, "Could not cancel reservation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetUserReservations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	reservations, err := h.Reservations.GetUserReservations(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetUserReservations: %v", err))
		h.writeError(w, "Could not list reservations", err)
		return
	}

	h.writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("InitiatePayment: invalid body: %v", err))
		http.Error(w, "Invalid payment JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.Payments.InitiatePayment(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("InitiatePayment: %v", err))
		// The payment row, when present, still tells the caller what
		// happened (fraud block, provider exhaustion).
		if p != nil {
			h.writeJSON(w, statusForError(err), utils.ErrorResponse(err.Error(), string(p.Status)))
			return
		}
		h.writeError(w, "Could not initiate payment", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("payment initiated", models.PaymentResponse{
		PaymentID:   p.PaymentID,
		Reference:   p.Reference,
		Status:      p.Status,
		Amount:      p.Amount,
		Currency:    p.Currency,
		FraudScore:  p.FraudScore,
		InitiatedAt: p.InitiatedAt,
	}))
}

func (h *Handler) CheckPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	p, err := h.Payments.CheckPaymentStatus(r.Context(), paymentID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckPaymentStatus: %v", err))
		h.writeError(w, "Could not check payment status", err)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	h.Logger.Info("API", fmt.Sprintf("RetryPayment: paymentId=%s", paymentID))

	p, err := h.Payments.RetryPayment(r.Context(), paymentID)
	if err != nil && p == nil {
		h.Logger.Error("API", fmt.Sprintf("RetryPayment: %v", err))
		h.writeError(w, "Could not retry payment", err)
		return
	}
	if err != nil {
		// Redispatch failed again; report the current payment state.
		h.writeJSON(w, statusForError(err), utils.ErrorResponse(err.Error(), string(p.Status)))
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	payments, err := h.Payments.ListUserPayments(userID, limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListUserPayments: %v", err))
		h.writeError(w, "Could not list payments", err)
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

// ProcessWebhook receives provider callbacks: raw payload plus the
// X-Signature header, forwarded to the orchestrator untouched.
func (h *Handler) ProcessWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessWebhook: failed to read payload: %v", err))
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Signature")

	result, err := h.Payments.ProcessWebhook(r.Context(), payload, signature, providerName)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ProcessWebhook: %v", err))
		h.writeError(w, "Webhook processing failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
