package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the
// given HTTP status code. If marshaling fails, it falls back to a
// plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a domain error onto an HTTP status. Coded errors
// additionally carry their stable code in the body.
func writeDomainError(w http.ResponseWriter, err error) {
	var coded *domain.Error
	if errors.As(err, &coded) {
		writeJSON(w, codedStatus(coded), map[string]string{
			"error": coded.Text,
			"code":  coded.Code,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrAuctionNotClosed),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrWithdrawClosed),
		errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrUserIDOutOfRange),
		errors.Is(err, domain.ErrEmptyReferralCode),
		errors.Is(err, domain.ErrReferralCodeLength),
		errors.Is(err, domain.ErrNotRegistered),
		errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// codedStatus maps the stable error codes onto HTTP statuses: lifecycle
// and replay violations are conflicts, ownership violations forbidden,
// everything else a bad request.
func codedStatus(e *domain.Error) int {
	switch e {
	case domain.ErrAuctionEnded, domain.ErrCancellationEnded, domain.ErrNotSettled,
		domain.ErrQueueExhausted, domain.ErrTooManyOrdersScanned,
		domain.ErrOrderAlreadyClaimed, domain.ErrCodeAlreadyRegistered:
		return http.StatusConflict
	case domain.ErrCancelOnlyOwnOrders, domain.ErrClaimMixedUsers:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(r.PathValue(name), 10, 64)
}

// pathUint parses a numeric query or path value.
func pathUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// parseAmount parses a positive decimal amount from a request field.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// orderPayload is the wire form of an order triple.
type orderPayload struct {
	UserID     uint64 `json:"user_id"`
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

// decodeOrders converts wire order triples into domain orders.
func decodeOrders(payloads []orderPayload) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(payloads))
	for _, p := range payloads {
		buy, ok := parseAmount(p.BuyAmount)
		if !ok {
			return nil, domain.ErrAmountOutOfRange
		}
		sell, ok := parseAmount(p.SellAmount)
		if !ok {
			return nil, domain.ErrAmountOutOfRange
		}
		o := domain.NewOrder(p.UserID, buy, sell)
		if _, err := o.Encode(); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
