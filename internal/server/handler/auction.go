package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/auction"
	"github.com/auctionlabs/auctiond/internal/domain"
)

// AuctionHandler serves auction lifecycle and query endpoints.
type AuctionHandler struct {
	svc    *auction.Service
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(svc *auction.Service, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{svc: svc, logger: logHandler(logger, "auction")}
}

type initiateAuctionRequest struct {
	AuctioningAsset          string    `json:"auctioning_asset"`
	BiddingAsset             string    `json:"bidding_asset"`
	Auctioneer               string    `json:"auctioneer"`
	AuctionedSellAmount      string    `json:"auctioned_sell_amount"`
	MinBuyAmount             string    `json:"min_buy_amount"`
	OrderCancellationEndDate time.Time `json:"order_cancellation_end_date"`
	AuctionEndDate           time.Time `json:"auction_end_date"`
	MinimumBiddingAmount     string    `json:"minimum_bidding_amount"`
	MinFundingThreshold      string    `json:"min_funding_threshold"`
	ReferralFeeNumerator     uint64    `json:"referral_fee_numerator"`
}

// auctionResponse is the wire form of an auction record. Amounts travel
// as decimal strings.
type auctionResponse struct {
	ID                       uint64     `json:"id"`
	AuctioningAsset          string     `json:"auctioning_asset"`
	BiddingAsset             string     `json:"bidding_asset"`
	Auctioneer               string     `json:"auctioneer"`
	Status                   string     `json:"status"`
	OrderCancellationEndDate time.Time  `json:"order_cancellation_end_date"`
	AuctionEndDate           time.Time  `json:"auction_end_date"`
	AuctionedSellAmount      string     `json:"auctioned_sell_amount"`
	MinBuyAmount             string     `json:"min_buy_amount"`
	MinimumBiddingAmount     string     `json:"minimum_bidding_amount"`
	MinFundingThreshold      string     `json:"min_funding_threshold"`
	FeeNumerator             uint64     `json:"fee_numerator"`
	ReferralFeeNumerator     uint64     `json:"referral_fee_numerator"`
	ClearingOrder            *orderView `json:"clearing_order,omitempty"`
	ClearingVolume           string     `json:"clearing_volume,omitempty"`
	ThresholdNotReached      bool       `json:"threshold_not_reached"`
	SettledAt                *time.Time `json:"settled_at,omitempty"`
}

type orderView struct {
	UserID     uint64 `json:"user_id"`
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

func auctionView(rec *domain.AuctionRecord, now time.Time) auctionResponse {
	resp := auctionResponse{
		ID:                       rec.ID,
		AuctioningAsset:          rec.AuctioningAsset.Hex(),
		BiddingAsset:             rec.BiddingAsset.Hex(),
		Auctioneer:               rec.Auctioneer.Hex(),
		Status:                   string(rec.Status(now)),
		OrderCancellationEndDate: rec.OrderCancellationEndDate,
		AuctionEndDate:           rec.AuctionEndDate,
		AuctionedSellAmount:      rec.InitialAuctionOrder.SellAmount.String(),
		MinBuyAmount:             rec.InitialAuctionOrder.BuyAmount.String(),
		MinimumBiddingAmount:     rec.MinimumBiddingAmount.String(),
		MinFundingThreshold:      rec.MinFundingThreshold.String(),
		FeeNumerator:             rec.FeeNumerator,
		ReferralFeeNumerator:     rec.ReferralFeeNumerator,
		ThresholdNotReached:      rec.MinFundingThresholdNotReached,
		SettledAt:                rec.SettledAt,
	}
	if rec.Settled() {
		resp.ClearingOrder = &orderView{
			UserID:     rec.ClearingPriceOrder.UserID,
			BuyAmount:  rec.ClearingPriceOrder.BuyAmount.String(),
			SellAmount: rec.ClearingPriceOrder.SellAmount.String(),
		}
		resp.ClearingVolume = rec.VolumeClearingPriceOrder.String()
	}
	return resp
}

// Initiate creates a new auction.
// POST /api/auctions
func (h *AuctionHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.AuctioningAsset) || !common.IsHexAddress(req.BiddingAsset) ||
		!common.IsHexAddress(req.Auctioneer) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	lot, ok := parseAmount(req.AuctionedSellAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid auctioned_sell_amount")
		return
	}
	minBuy, ok := parseAmount(req.MinBuyAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid min_buy_amount")
		return
	}
	minBid, ok := parseAmount(req.MinimumBiddingAmount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid minimum_bidding_amount")
		return
	}
	threshold, ok := parseAmount(req.MinFundingThreshold)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid min_funding_threshold")
		return
	}

	id, err := h.svc.InitiateAuction(r.Context(), auction.InitiateParams{
		AuctioningAsset:          common.HexToAddress(req.AuctioningAsset),
		BiddingAsset:             common.HexToAddress(req.BiddingAsset),
		Auctioneer:               common.HexToAddress(req.Auctioneer),
		AuctionedSellAmount:      lot,
		MinBuyAmount:             minBuy,
		OrderCancellationEndDate: req.OrderCancellationEndDate,
		AuctionEndDate:           req.AuctionEndDate,
		MinimumBiddingAmount:     minBid,
		MinFundingThreshold:      threshold,
		ReferralFeeNumerator:     req.ReferralFeeNumerator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"auction_id": id})
}

// Get returns one auction record.
// GET /api/auctions/{id}
func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	rec, err := h.svc.AuctionData(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auctionView(rec, time.Now()))
}

// List returns auctions with pagination.
// GET /api/auctions
func (h *AuctionHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListAuctions(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	now := time.Now()
	out := make([]auctionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, auctionView(rec, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": out})
}

// SecondsRemaining reports the time left until the auction closes.
// GET /api/auctions/{id}/seconds-remaining
func (h *AuctionHandler) SecondsRemaining(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	left, err := h.svc.SecondsRemaining(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seconds_remaining": left})
}

// Precalculate advances the clearing-scan checkpoint.
// POST /api/auctions/{id}/precalculate
func (h *AuctionHandler) Precalculate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	var req struct {
		Steps int `json:"steps"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.PrecalculateSellAmountSum(r.Context(), id, req.Steps); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "advanced"})
}

// Settle fixes the clearing price and releases the auctioneer's side.
// POST /api/auctions/{id}/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	res, err := h.svc.Settle(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auction_id": res.AuctionID,
		"clearing_order": orderView{
			UserID:     res.ClearingOrder.UserID,
			BuyAmount:  res.ClearingOrder.BuyAmount.String(),
			SellAmount: res.ClearingOrder.SellAmount.String(),
		},
		"clearing_volume":       res.VolumeClearingOrder.String(),
		"sold_auctioned_amount": res.SoldAuctionedAmount.String(),
		"raised_bidding_amount": res.RaisedBiddingAmount.String(),
		"fee_amount":            res.FeeAmount.String(),
		"threshold_not_reached": res.FundingThresholdNotReached,
	})
}
