package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/auction"
	"github.com/auctionlabs/auctiond/internal/domain"
)

// OrderHandler serves order placement, cancellation and claims.
type OrderHandler struct {
	svc    *auction.Service
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(svc *auction.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logHandler(logger, "order")}
}

type placeOrdersRequest struct {
	Address string `json:"address"`
	Orders  []struct {
		BuyAmount  string `json:"buy_amount"`
		SellAmount string `json:"sell_amount"`
	} `json:"orders"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Place submits one or more bids into an auction's book.
// POST /api/auctions/{id}/orders
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	var req placeOrdersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	if len(req.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "no orders given")
		return
	}

	specs := make([]auction.OrderSpec, 0, len(req.Orders))
	for _, o := range req.Orders {
		buy, ok := parseAmount(o.BuyAmount)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid buy_amount")
			return
		}
		sell, ok := parseAmount(o.SellAmount)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid sell_amount")
			return
		}
		specs = append(specs, auction.OrderSpec{BuyAmount: buy, SellAmount: sell})
	}

	keys, err := h.svc.PlaceOrders(r.Context(), id, common.HexToAddress(req.Address),
		specs, domain.ReferralCode(req.ReferralCode))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hexKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		hexKeys = append(hexKeys, k.Hex())
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order_keys": hexKeys})
}

type cancelOrdersRequest struct {
	Address string         `json:"address"`
	Orders  []orderPayload `json:"orders"`
}

// Cancel removes the caller's own active orders and refunds their escrow.
// DELETE /api/auctions/{id}/orders
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	var req cancelOrdersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	orders, err := decodeOrders(req.Orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	refund, err := h.svc.CancelOrders(r.Context(), id, common.HexToAddress(req.Address), orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunded_bidding_amount": refund.String()})
}

type claimRequest struct {
	Orders []orderPayload `json:"orders"`
}

// Claim pays out a batch of orders of a single user after settlement.
// POST /api/auctions/{id}/claims
func (h *OrderHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	orders, err := decodeOrders(req.Orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(orders) == 0 {
		writeError(w, http.StatusBadRequest, "no orders given")
		return
	}

	res, err := h.svc.Claim(r.Context(), id, orders)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt_id":       res.ReceiptID,
		"user_id":          res.UserID,
		"auctioned_amount": res.AuctionedAmount.String(),
		"bidding_amount":   res.BiddingAmount.String(),
		"claimed_orders":   res.ClaimedOrders,
	})
}

// Contains reports whether the exact order is active in the auction's book.
// GET /api/auctions/{id}/orders/contains
func (h *OrderHandler) Contains(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid auction id")
		return
	}
	q := r.URL.Query()
	p := orderPayload{
		BuyAmount:  q.Get("buy_amount"),
		SellAmount: q.Get("sell_amount"),
	}
	userID, err := pathUint(q.Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	p.UserID = userID
	orders, err := decodeOrders([]orderPayload{p})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ok, err := h.svc.ContainsOrder(r.Context(), id, orders[0])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contains": ok})
}
