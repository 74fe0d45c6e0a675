// Package redeem реализует HTTP-обработчик активации промокода
// текущим пользователем.
//
// Доменные ошибки активации отображаются в HTTP-статусы: отсутствие
// кода — 404, повторное использование и истечение — 409, остальные
// нарушения бизнес-правил — 422.
package redeem

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/nbelyakov/vpn-billing/internal/http/middlewarectx"
	"github.com/nbelyakov/vpn-billing/internal/http/response"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/promocode"
)

// Request тело запроса активации.
type Request struct {
	Code string `json:"code" validate:"required,min=3,max=64"`
}

// Service описывает интерфейс движка активации кодов.
type Service interface {
	Redeem(ctx context.Context, code string, userID int64) (*promocode.Result, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Активировать промокод
// @Description Применяет эффект кода к текущему пользователю ровно один раз.
// @Tags Promocodes
// @Accept  json
// @Produce  json
// @Param request body Request true "Код для активации"
// @Success 200 {object} response.Response "Результат активации"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Код не найден"
// @Failure 409 {object} response.ErrorResponse "Код уже использован или истёк"
// @Failure 422 {object} response.ErrorResponse "Нарушение бизнес-правил"
// @Router /promocodes/redeem [post]
// @Security ApiKeyAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.promocode.redeem"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.Redeem(r.Context(), req.Code, userID)
	if err != nil {
		status, msg := mapError(err)
		log.Error("failed to redeem code", slog.String("code", req.Code), sl.Err(err))
		render.Status(r, status)
		render.JSON(w, r, response.Error(msg))
		return
	}

	log.Info("promocode redeemed",
		sl.UserID(userID),
		slog.String("type", string(result.Type)),
		slog.Bool("applied", result.Applied))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"type":    result.Type,
		"applied": result.Applied,
		"message": result.Message,
	}))
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrPromoCodeNotFound):
		return http.StatusNotFound, "promocode not found"
	case errors.Is(err, models.ErrPromoCodeAlreadyUsed):
		return http.StatusConflict, "promocode already used"
	case errors.Is(err, models.ErrPromoCodeExpired):
		return http.StatusConflict, "promocode expired"
	case errors.Is(err, models.ErrNotFirstPurchase):
		return http.StatusUnprocessableEntity, "promocode is valid only for the first purchase"
	case errors.Is(err, models.ErrActiveDiscountExists):
		return http.StatusUnprocessableEntity, "active discount already exists"
	case errors.Is(err, models.ErrInvalidGiftPayload):
		return http.StatusUnprocessableEntity, "invalid gift payload"
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "could not redeem promocode"
	}
}
