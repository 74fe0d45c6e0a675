// Package depositwebhook реализует HTTP-обработчик колбэков платёжного
// провайдера о зачислении средств.
package depositwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/nbelyakov/vpn-billing/internal/http/response"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
	"github.com/nbelyakov/vpn-billing/internal/services/payment"
)

// SignatureHeader заголовок с подписью тела колбэка.
const SignatureHeader = "X-Payment-Signature"

// Payload тело колбэка провайдера.
type Payload struct {
	ExternalID    string `json:"external_id" validate:"required"`
	TelegramID    int64  `json:"telegram_id" validate:"required"`
	AmountKopeks  int64  `json:"amount_kopeks" validate:"required,min=1"`
	PaymentMethod string `json:"payment_method"`
	Status        string `json:"status" validate:"required"`
}

// Service зачисляет подтверждённый платёж.
type Service interface {
	Credit(ctx context.Context, dep payment.Deposit) error
}

type Handler struct {
	log      *slog.Logger
	service  Service
	secret   string
	validate *validator.Validate
}

// New создает новый Handler. Пустой secret отключает проверку подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		secret:   secret,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Принять колбэк платёжного провайдера
// @Description Зачисляет подтверждённый платёж на баланс. Повторная доставка не даёт двойного зачисления.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Param X-Payment-Signature header string false "Подпись sha256=<hex>"
// @Param request body Payload true "Данные платежа"
// @Success 200 {object} response.Response "Платёж зачислен"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Router /webhooks/payment [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.deposit"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}

	if !h.verifySignature(log, r.Header.Get(SignatureHeader), body) {
		log.Error("payment callback signature mismatch")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var req Payload
	if err := json.Unmarshal(body, &req); err != nil {
		log.Error("failed to decode payload", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if req.Status != "succeeded" {
		log.Info("ignoring non-final payment status", slog.String("status", req.Status))
		render.JSON(w, r, response.OKWithData(map[string]any{"ignored": true}))
		return
	}

	err = h.service.Credit(r.Context(), payment.Deposit{
		ExternalID:    req.ExternalID,
		TelegramID:    req.TelegramID,
		AmountKopeks:  req.AmountKopeks,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Error("payment for unknown user", slog.Int64("telegram_id", req.TelegramID))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("unknown user"))
			return
		}
		log.Error("failed to credit deposit", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not credit deposit"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"external_id": req.ExternalID}))
}

func (h *Handler) verifySignature(log *slog.Logger, header string, body []byte) bool {
	if h.secret == "" {
		log.Warn("payment webhook secret is not configured, signature check skipped")
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
