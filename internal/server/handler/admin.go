package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/auction"
	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/referral"
)

// AdminHandler serves operator-only configuration endpoints. Routes using
// it must sit behind the admin auth middleware.
type AdminHandler struct {
	auctions  *auction.Service
	referrals *referral.Service
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(auctions *auction.Service, referrals *referral.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		auctions:  auctions,
		referrals: referrals,
		logger:    logHandler(logger, "admin"),
	}
}

type feeTierPayload struct {
	Numerator uint64 `json:"numerator"`
	Threshold string `json:"threshold"`
}

type setFeesRequest struct {
	Tiers       []feeTierPayload `json:"tiers"`
	FeeReceiver string           `json:"fee_receiver"`
}

// SetFees replaces the tiered fee schedule. Running auctions keep the
// parameters snapshotted at creation.
// PUT /api/admin/fees
func (h *AdminHandler) SetFees(w http.ResponseWriter, r *http.Request) {
	var req setFeesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tiers) != len(domain.FeeParameters{}.Tiers) {
		writeError(w, http.StatusBadRequest, "fee schedule needs exactly five tiers")
		return
	}
	if !common.IsHexAddress(req.FeeReceiver) {
		writeError(w, http.StatusBadRequest, "invalid fee_receiver")
		return
	}

	var params domain.FeeParameters
	params.FeeReceiver = common.HexToAddress(req.FeeReceiver)
	for i, t := range req.Tiers {
		threshold, ok := new(big.Int).SetString(t.Threshold, 10)
		if !ok || threshold.Sign() < 0 {
			writeError(w, http.StatusBadRequest, "invalid tier threshold")
			return
		}
		params.Tiers[i] = domain.FeeTier{Numerator: t.Numerator, Threshold: threshold}
	}

	if err := h.auctions.SetFeeParameters(r.Context(), auction.Capability{Admin: true}, params); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.Info("fee schedule updated", slog.String("fee_receiver", params.FeeReceiver.Hex()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Fees returns the current fee schedule.
// GET /api/admin/fees
func (h *AdminHandler) Fees(w http.ResponseWriter, r *http.Request) {
	params := h.auctions.FeeParameters()
	tiers := make([]feeTierPayload, 0, len(params.Tiers))
	for _, t := range params.Tiers {
		threshold := "0"
		if t.Threshold != nil {
			threshold = t.Threshold.String()
		}
		tiers = append(tiers, feeTierPayload{Numerator: t.Numerator, Threshold: threshold})
	}
	writeJSON(w, http.StatusOK, setFeesRequest{
		Tiers:       tiers,
		FeeReceiver: params.FeeReceiver.Hex(),
	})
}

type withdrawSwitchRequest struct {
	Open bool `json:"open"`
}

// SetWithdrawSwitch opens or closes referral reward withdrawals globally.
// PUT /api/admin/referrals/withdraw-switch
func (h *AdminHandler) SetWithdrawSwitch(w http.ResponseWriter, r *http.Request) {
	var req withdrawSwitchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.referrals.SetWithdrawOpen(r.Context(), referral.Capability{Admin: true}, req.Open); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.Info("referral withdraw switch set", slog.Bool("open", req.Open))
	writeJSON(w, http.StatusOK, map[string]bool{"open": req.Open})
}

// WithdrawSwitch reports the state of the referral withdraw switch.
// GET /api/admin/referrals/withdraw-switch
func (h *AdminHandler) WithdrawSwitch(w http.ResponseWriter, r *http.Request) {
	open, err := h.referrals.WithdrawOpen(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": open})
}
