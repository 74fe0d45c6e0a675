// Package grouplist реализует HTTP-обработчик списка доступных
// групп серверов для выбора при покупке подписки или подарка.
package grouplist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/nbelyakov/vpn-billing/internal/http/response"
	"github.com/nbelyakov/vpn-billing/internal/lib/sl"
	"github.com/nbelyakov/vpn-billing/internal/models"
)

// Catalog описывает интерфейс чтения каталога групп серверов.
type Catalog interface {
	ListGroups(ctx context.Context) ([]*models.ServerGroup, error)
}

// Group элемент ответа со списком групп.
type Group struct {
	UUID            string `json:"uuid"`
	Name            string `json:"name"`
	CountryCode     string `json:"country_code"`
	PriceKopeks     int64  `json:"price_kopeks"`
	IsTrialEligible bool   `json:"is_trial_eligible"`
}

type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

func New(log *slog.Logger, catalog Catalog) *Handler {
	return &Handler{log: log, catalog: catalog}
}

// ServeHTTP godoc
// @Summary Список групп серверов
// @Description Возвращает активные группы серверов с надбавками к цене.
// @Tags Servers
// @Produce  json
// @Success 200 {object} response.Response "Список групп"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Router /servers [get]
// @Security ApiKeyAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.servergroup.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	groups, err := h.catalog.ListGroups(r.Context())
	if err != nil {
		log.Error("failed to list server groups", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list server groups"))
		return
	}

	items := make([]Group, 0, len(groups))
	for _, g := range groups {
		items = append(items, Group{
			UUID:            g.UUID,
			Name:            g.Name,
			CountryCode:     g.CountryCode,
			PriceKopeks:     g.PriceKopeks,
			IsTrialEligible: g.IsTrialEligible,
		})
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"groups": items,
	}))
}
