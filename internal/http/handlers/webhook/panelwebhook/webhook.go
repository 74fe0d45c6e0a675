// Package panelwebhook реализует HTTP-обработчик входящих событий панели
// управления VPN-серверами.
//
// Handler проверяет подпись HMAC-SHA256 запроса, разбирает событие и
// передаёт его реконсилятору. Квитанция с success=false отдается со
// статусом 200: панель не должна бесконечно ретраить событие, которое
// падает перманентно. 401 и 400 зарезервированы за подписью и битым телом.
package panelwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/nbelyakov/vpn-billing/internal/http/response"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/services/reconciler"
)

// SignatureHeader заголовок с подписью тела запроса.
const SignatureHeader = "X-Panel-Signature"

// Reconciler применяет событие панели к локальному состоянию.
type Reconciler interface {
	Process(ctx context.Context, ev reconciler.Event) reconciler.Result
}

// Handler управляет HTTP-запросами вебхуков панели.
type Handler struct {
	log     *slog.Logger
	service Reconciler
	secret  string
}

// New создает новый Handler. Пустой secret отключает проверку подписи.
func New(log *slog.Logger, service Reconciler, secret string) *Handler {
	return &Handler{log: log, service: service, secret: secret}
}

// ServeHTTP godoc
// @Summary Принять событие панели
// @Description Проверяет подпись и применяет событие к локальному состоянию подписок.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Param X-Panel-Signature header string false "Подпись sha256=<hex>"
// @Success 200 {object} reconciler.Result "Квитанция обработки"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Router /webhooks/panel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.panel"
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
		log.Error("webhook signature mismatch")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var ev reconciler.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Error("failed to decode event", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if ev.Event == "" {
		log.Error("event type is empty")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("event is a required field"))
		return
	}

	result := h.service.Process(r.Context(), ev)
	log.Info("webhook event processed",
		slog.String("event", result.Event),
		slog.Bool("success", result.Success),
		slog.String("message", result.Message))
	render.JSON(w, r, result)
}

// ServeHealth godoc
// @Summary Статус приёмника вебхуков
// @Description Возвращает список поддерживаемых типов событий панели.
// @Tags Webhooks
// @Produce  json
// @Success 200 {object} response.Response "Статус и список событий"
// @Router /webhooks/panel/health [get]
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(map[string]any{
		"status":           "ok",
		"supported_events": reconciler.SupportedEvents(),
	}))
}

// verifySignature сверяет HMAC-SHA256 тела запроса с заголовком вида
// sha256=<hex>. Сравнение выполняется за постоянное время. Без
// настроенного секрета проверка пропускается с явным предупреждением.
func (h *Handler) verifySignature(log *slog.Logger, header string, body []byte) bool {
	if h.secret == "" {
		log.Warn("webhook secret is not configured, signature check skipped")
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
