package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/auction"
)

// UserHandler serves user registration and lookup.
type UserHandler struct {
	svc    *auction.Service
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(svc *auction.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logHandler(logger, "user")}
}

// Register binds an address to a fresh user id.
// POST /api/users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	id, err := h.svc.RegisterUser(r.Context(), common.HexToAddress(req.Address))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": id})
}

// Lookup resolves an address to its user id.
// GET /api/users/{address}
func (h *UserHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if !common.IsHexAddress(addr) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	id, err := h.svc.UserID(r.Context(), common.HexToAddress(addr))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": id})
}
