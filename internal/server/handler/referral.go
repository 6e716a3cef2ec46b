package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/referral"
)

// ReferralHandler serves referral code registration, lookups and reward
// withdrawals.
type ReferralHandler struct {
	svc    *referral.Service
	logger *slog.Logger
}

// NewReferralHandler creates a ReferralHandler.
func NewReferralHandler(svc *referral.Service, logger *slog.Logger) *ReferralHandler {
	return &ReferralHandler{svc: svc, logger: logHandler(logger, "referral")}
}

type registerCodeRequest struct {
	Code  string `json:"code"`
	Owner string `json:"owner"`
}

// Register binds a referral code to an owner address, permanently.
// POST /api/referrals
func (h *ReferralHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Owner) {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	if err := h.svc.RegisterCode(r.Context(), domain.ReferralCode(req.Code),
		common.HexToAddress(req.Owner)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": req.Code})
}

// CodeOwner returns the owner bound to a referral code.
// GET /api/referrals/{code}
func (h *ReferralHandler) CodeOwner(w http.ResponseWriter, r *http.Request) {
	code := domain.ReferralCode(r.PathValue("code"))
	owner, err := h.svc.CodeOwner(r.Context(), code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"code":  string(code),
		"owner": owner.Hex(),
	})
}

// AddressCode returns the code an owner holds, if any.
// GET /api/referrals/owner/{address}
func (h *ReferralHandler) AddressCode(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if !common.IsHexAddress(addr) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	code, err := h.svc.AddressCode(r.Context(), common.HexToAddress(addr))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner": common.HexToAddress(addr).Hex(),
		"code":  string(code),
	})
}

// Balance returns the accrued reward balance of an owner in one asset.
// GET /api/referrals/owner/{address}/balance?asset=0x...
func (h *ReferralHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	asset := r.URL.Query().Get("asset")
	if !common.IsHexAddress(addr) || !common.IsHexAddress(asset) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	bal, err := h.svc.Balance(r.Context(), common.HexToAddress(addr), common.HexToAddress(asset))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":   common.HexToAddress(addr).Hex(),
		"asset":   common.HexToAddress(asset).Hex(),
		"balance": bal.String(),
	})
}

type withdrawRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Withdraw pays out accrued referral rewards, if the global switch is open.
// POST /api/referrals/withdrawals
func (h *ReferralHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Owner) || !common.IsHexAddress(req.Asset) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := h.svc.Withdraw(r.Context(), common.HexToAddress(req.Owner),
		common.HexToAddress(req.Asset), amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}
