package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/models"
)

// maxSymbolsPerRequest caps a single request's symbol list so one caller
// cannot occupy the whole worker pool.
const maxSymbolsPerRequest = 50

// handlePrices serves GET /v1/prices?symbols=AAPL,MSFT&from=2024-01-01&to=2024-01-31
// with an optional refetch_days override.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()

	var symbols []string
	for _, part := range strings.Split(q.Get("symbols"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			symbols = append(symbols, part)
		}
	}
	if len(symbols) == 0 {
		WriteError(w, http.StatusBadRequest, "symbols parameter is required")
		return
	}
	if len(symbols) > maxSymbolsPerRequest {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("too many symbols: %d (max %d)", len(symbols), maxSymbolsPerRequest))
		return
	}

	from, err := time.Parse(models.DateLayout, q.Get("from"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.Parse(models.DateLayout, q.Get("to"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
		return
	}
	if to.Before(from) {
		WriteError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	refetchDays := -1
	if raw := q.Get("refetch_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "refetch_days must be a non-negative integer")
			return
		}
		refetchDays = n
	}

	results := s.sync.EnsureAndRead(r.Context(), interfaces.SyncRequest{
		Symbols:           symbols,
		From:              from,
		To:                to,
		RefetchWindowDays: refetchDays,
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
