package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Spok95/erp-catalog-bot/internal/domain/reorder"
	"github.com/goccy/go-json"
)

// ErrNoCatalog каталог ещё ни разу не загружен.
var ErrNoCatalog = errors.New("catalog not loaded yet")

// ReorderSource отчёт по точкам заказа на последнем принятом дереве.
type ReorderSource interface {
	ReorderReport(ctx context.Context) ([]reorder.Status, time.Time, error)
}

type ReorderHandler struct {
	log *slog.Logger
	src ReorderSource
}

func NewReorderHandler(log *slog.Logger, src ReorderSource) *ReorderHandler {
	return &ReorderHandler{log: log, src: src}
}

type statusDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Unit           string   `json:"unit"`
	ItemCodes      []string `json:"item_codes"`
	WarehouseCodes []string `json:"warehouse_codes"`
	Threshold      string   `json:"reorder_quantity"`
	Current        string   `json:"current_quantity"`
	Diff           string   `json:"diff"`
	State          string   `json:"state"`
}

type reportDTO struct {
	CatalogLoadedAt time.Time   `json:"catalog_loaded_at"`
	Triggered       int         `json:"triggered"`
	Points          []statusDTO `json:"points"`
}

// ServeHTTP GET /api/reorder/status -> JSON-отчёт, сработавшие точки первыми.
func (h *ReorderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, loadedAt, err := h.src.ReorderReport(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoCatalog) {
			status = http.StatusServiceUnavailable
		}
		h.log.Error("reorder report failed", "err", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	out := reportDTO{CatalogLoadedAt: loadedAt, Points: make([]statusDTO, 0, len(report))}
	for _, st := range report {
		if st.Triggered() {
			out.Triggered++
		}
		out.Points = append(out.Points, statusDTO{
			ID:             st.Point.ID,
			Name:           st.Name,
			Unit:           st.Point.Unit,
			ItemCodes:      st.Point.ItemCodes,
			WarehouseCodes: st.Point.WarehouseCodes,
			Threshold:      st.Point.ReorderQuantity.String(),
			Current:        st.Current.String(),
			Diff:           st.Diff.String(),
			State:          st.State.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
