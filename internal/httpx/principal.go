package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-order-management.git/internal/orders"
)

// Identity headers are set by the gateway after token verification; this
// service trusts them. X-User-Staff marks the staff capability.
func principalFrom(r *http.Request) (orders.Principal, bool) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return orders.Principal{}, false
	}
	staff := r.Header.Get("X-User-Staff")
	return orders.Principal{ID: id, Staff: staff == "true" || staff == "1"}, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto status codes. Anything
// unrecognized is a 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		iq *orders.InvalidQuantityError
		nf *orders.ProductNotFoundError
		se *orders.StockError
		pd *orders.PermissionDeniedError
		te *orders.TransitionError
	)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &pd):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrProductInUse):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrOrderClosed),
		errors.As(err, &iq),
		errors.As(err, &nf),
		errors.As(err, &se),
		errors.As(err, &te):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
