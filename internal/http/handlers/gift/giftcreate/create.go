// Package giftcreate реализует HTTP-обработчик покупки подарочной
// подписки: списание с баланса покупателя и выпуск одноразового кода.
package giftcreate

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
	"github.com/nbelyakov/vpn-billing/internal/services/pricing"
	"github.com/nbelyakov/vpn-billing/internal/services/promocode"
)

// Request параметры подарочной подписки.
type Request struct {
	PeriodDays     int      `json:"period_days" validate:"required,min=1,max=730"`
	TrafficLimitGB int      `json:"traffic_limit_gb" validate:"min=0"`
	DeviceLimit    int      `json:"device_limit" validate:"required,min=1,max=10"`
	SquadUUIDs     []string `json:"squad_uuids" validate:"required,min=1,dive,uuid"`
}

// Service описывает интерфейс выпуска подарочных кодов.
type Service interface {
	CreateGift(ctx context.Context, purchaserID int64, params pricing.Params) (*promocode.Gift, error)
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
// @Summary Купить подарочную подписку
// @Description Списывает стоимость с баланса и возвращает одноразовый код для получателя.
// @Tags Gifts
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры подарочной подписки"
// @Success 200 {object} response.Response "Код и цена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно средств"
// @Failure 422 {object} response.ErrorResponse "Некорректные параметры подписки"
// @Router /gifts [post]
// @Security ApiKeyAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.gift.create"
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

	gift, err := h.service.CreateGift(r.Context(), userID, pricing.Params{
		PeriodDays:     req.PeriodDays,
		TrafficLimitGB: req.TrafficLimitGB,
		DeviceLimit:    req.DeviceLimit,
		SquadUUIDs:     req.SquadUUIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientBalance):
			log.Error("insufficient balance for gift", sl.UserID(userID))
			render.Status(r, http.StatusPaymentRequired)
			render.JSON(w, r, response.Error("insufficient balance"))
		case errors.Is(err, models.ErrInvalidGiftParams):
			log.Error("invalid gift parameters", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("invalid gift parameters"))
		case errors.Is(err, models.ErrCodeGenerationExhausted):
			log.Error("code generation exhausted", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not generate unique code"))
		default:
			log.Error("failed to create gift", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create gift"))
		}
		return
	}

	log.Info("gift created", sl.UserID(userID), slog.Int64("price_kopeks", gift.PriceKopeks))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"code":         gift.Code,
		"price_kopeks": gift.PriceKopeks,
		"deep_link":    gift.DeepLink,
	}))
}
