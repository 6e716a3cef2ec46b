package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only
// needs the query methods it actually calls, not the full domain store
// interfaces; the Postgres stores satisfy these implicitly.

// AuctionArchiveStore provides read access to auction records for archival.
type AuctionArchiveStore interface {
	Get(ctx context.Context, id uint64) (*domain.AuctionRecord, error)
}

// OrderArchiveStore provides read access to the full bid history of an
// auction, including cancelled and claimed orders.
type OrderArchiveStore interface {
	ListAll(ctx context.Context, auctionID uint64) ([]domain.BookOrder, error)
}

// AuditArchiveStore provides read access to old audit entries for archival.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by exporting settled auctions and
// old audit entries as JSON objects in the configured bucket.
//
// Deletion of archived records from the primary store is intentionally NOT
// performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	auctions AuctionArchiveStore
	orders   OrderArchiveStore
	auditSrc AuditArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	auctions AuctionArchiveStore,
	orders OrderArchiveStore,
	auditSrc AuditArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		auctions: auctions,
		orders:   orders,
		auditSrc: auditSrc,
		audit:    audit,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// settlementReport is the archived form of one settled auction. Amounts
// are rendered as decimal strings, order keys as hex.
type settlementReport struct {
	AuctionID            uint64        `json:"auction_id"`
	AuctioningAsset      string        `json:"auctioning_asset"`
	BiddingAsset         string        `json:"bidding_asset"`
	Auctioneer           string        `json:"auctioneer"`
	AuctionEndDate       time.Time     `json:"auction_end_date"`
	SettledAt            time.Time     `json:"settled_at"`
	AuctionedSellAmount  string        `json:"auctioned_sell_amount"`
	MinBuyAmount         string        `json:"min_buy_amount"`
	ClearingUserID       uint64        `json:"clearing_user_id"`
	ClearingBuyAmount    string        `json:"clearing_buy_amount"`
	ClearingSellAmount   string        `json:"clearing_sell_amount"`
	ClearingVolume       string        `json:"clearing_volume"`
	FeeNumerator         uint64        `json:"fee_numerator"`
	ReferralFeeNumerator uint64        `json:"referral_fee_numerator"`
	ThresholdNotReached  bool          `json:"threshold_not_reached"`
	Orders               []reportOrder `json:"orders"`
}

type reportOrder struct {
	Key          string    `json:"key"`
	UserID       uint64    `json:"user_id"`
	BuyAmount    string    `json:"buy_amount"`
	SellAmount   string    `json:"sell_amount"`
	ReferralCode string    `json:"referral_code,omitempty"`
	Status       string    `json:"status"`
	PlacedAt     time.Time `json:"placed_at"`
}

// ArchiveAuction serializes the settlement report of a settled auction and
// uploads it to archive/auctions/<id>.json. The archival event is recorded
// in the audit log and the count of included orders is returned. Archiving
// an unsettled auction fails with ErrNotSettled.
func (a *ArchiveImpl) ArchiveAuction(ctx context.Context, auctionID uint64) (int64, error) {
	rec, err := a.auctions.Get(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auction query: %w", err)
	}
	if !rec.Settled() {
		return 0, domain.ErrNotSettled
	}

	orders, err := a.orders.ListAll(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auction orders query: %w", err)
	}

	report := settlementReport{
		AuctionID:            rec.ID,
		AuctioningAsset:      rec.AuctioningAsset.Hex(),
		BiddingAsset:         rec.BiddingAsset.Hex(),
		Auctioneer:           rec.Auctioneer.Hex(),
		AuctionEndDate:       rec.AuctionEndDate,
		SettledAt:            *rec.SettledAt,
		AuctionedSellAmount:  rec.InitialAuctionOrder.SellAmount.String(),
		MinBuyAmount:         rec.InitialAuctionOrder.BuyAmount.String(),
		ClearingUserID:       rec.ClearingPriceOrder.UserID,
		ClearingBuyAmount:    rec.ClearingPriceOrder.BuyAmount.String(),
		ClearingSellAmount:   rec.ClearingPriceOrder.SellAmount.String(),
		ClearingVolume:       rec.VolumeClearingPriceOrder.String(),
		FeeNumerator:         rec.FeeNumerator,
		ReferralFeeNumerator: rec.ReferralFeeNumerator,
		ThresholdNotReached:  rec.MinFundingThresholdNotReached,
		Orders:               make([]reportOrder, 0, len(orders)),
	}
	for _, o := range orders {
		key, err := o.Order.Encode()
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive auction encode order: %w", err)
		}
		report.Orders = append(report.Orders, reportOrder{
			Key:          key.Hex(),
			UserID:       o.Order.UserID,
			BuyAmount:    o.Order.BuyAmount.String(),
			SellAmount:   o.Order.SellAmount.String(),
			ReferralCode: string(o.ReferralCode),
			Status:       string(o.Status),
			PlacedAt:     o.PlacedAt,
		})
	}

	buf, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive auction marshal: %w", err)
	}

	path := fmt.Sprintf("archive/auctions/%d.json", auctionID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return 0, fmt.Errorf("s3blob: archive auction upload: %w", err)
	}

	count := int64(len(orders))

	if err := a.audit.Log(ctx, "archive.auction", map[string]any{
		"path":       path,
		"auction_id": auctionID,
		"orders":     count,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive auction audit log: %w", err)
	}

	return count, nil
}

// ArchiveAudit queries all audit entries before the cutoff, serializes them
// to JSONL, and uploads the file to archive/audit/YYYY-MM.jsonl. The count
// of archived entries is returned.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.auditSrc.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := fmt.Sprintf("archive/audit/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}

	return count, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
