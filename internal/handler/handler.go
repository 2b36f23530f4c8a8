package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cardhub/card-service/internal/middleware"
	"github.com/cardhub/card-service/internal/models"
	"github.com/cardhub/card-service/internal/repository"
	"github.com/cardhub/card-service/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validate
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createCardRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type fillRequest struct {
	CardNumber string          `json:"card_number" validate:"required,numeric"`
	Amount     decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	FromCard string          `json:"from_card" validate:"required,numeric"`
	ToCard   string          `json:"to_card" validate:"required,numeric"`
	Amount   decimal.Decimal `json:"amount"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type updateCardRequest struct {
	CardHolder string `json:"card_holder"`
	ExpiryDate string `json:"expiry_date"` // YYYY-MM-DD
	Status     string `json:"status"`
}

type cardDetailsResponse struct {
	*models.Card
	CardNumber string `json:"card_number"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.svc.Register(req.Email, req.FullName, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	token, err := h.svc.Login(req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateCard issues a new card for a user
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if !h.decode(w, r, &req) {
		return
	}
	card, err := h.svc.AddCard(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, card)
}

// ListCards lists cards matching the query filter
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	filter := repository.CardFilter{Keyword: r.URL.Query().Get("keyword")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseCardStatus(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("deleted"); raw != "" {
		deleted, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("deleted must be a boolean"))
			return
		}
		filter.Deleted = &deleted
	}
	cards, err := h.svc.ListCards(filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

// MyCards lists the authenticated caller's cards
func (h *Handler) MyCards(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserID(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorBody("to see own cards, please login to the system"))
		return
	}
	cards, err := h.svc.ListOwnerCards(ownerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

// GetCard returns a single card
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	card, err := h.svc.GetCard(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

// GetCardDetails returns a card with its decrypted number
func (h *Handler) GetCardDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	card, number, err := h.svc.GetCardDetails(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cardDetailsResponse{Card: card, CardNumber: number})
}

// GetBalance returns a card's balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.svc.GetBalance(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// UpdateCard applies a partial card update
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req updateCardRequest
	if !h.decode(w, r, &req) {
		return
	}
	upd := service.CardUpdate{CardHolder: req.CardHolder}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("expiry_date must be YYYY-MM-DD"))
			return
		}
		upd.ExpiryDate = &expiry
	}
	if req.Status != "" {
		status, err := models.ParseCardStatus(req.Status)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		upd.Status = status
	}
	if err := h.svc.UpdateCardHolder(id, upd); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageBody("card has been updated successfully"))
}

// ChangeStatus applies an administrative status change
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := models.ParseCardStatus(req.Status)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.ChangeStatus(id, status); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageBody("card status successfully changed"))
}

// DeleteCard soft-deletes a card
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageBody("card has been successfully deleted"))
}

// FillCard deposits money onto a card
func (h *Handler) FillCard(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.FillCard(r.Context(), req.CardNumber, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageBody("card successfully filled with "+req.Amount.String()))
}

// Transfer moves money between two cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Transfer(r.Context(), req.FromCard, req.ToCard, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageBody("money has successfully transferred"))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to HTTP statuses. Business errors get
// distinct 4xx outcomes; everything else is an infrastructure failure.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrCardNotFound), errors.Is(err, service.ErrOwnerNotFound):
		h.writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, service.ErrCardConflict):
		h.writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, service.ErrCardExpired), errors.Is(err, service.ErrCardBlocked),
		errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrSameCard),
		errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, service.ErrInvalidStatus):
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	default:
		h.writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func messageBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}
