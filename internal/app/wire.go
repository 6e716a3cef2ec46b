package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/auctionlabs/auctiond/internal/blob/s3"
	"github.com/auctionlabs/auctiond/internal/cache/redis"
	"github.com/auctionlabs/auctiond/internal/config"
	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/oracle"
	"github.com/auctionlabs/auctiond/internal/store/memory"
	"github.com/auctionlabs/auctiond/internal/store/postgres"
	"github.com/auctionlabs/auctiond/internal/token"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	AuctionStore  domain.AuctionStore
	OrderStore    domain.OrderStore
	UserStore     domain.UserStore
	ReferralStore domain.ReferralStore
	AuditStore    domain.AuditStore

	// Archive views over the same stores.
	OrderArchive s3blob.OrderArchiveStore
	AuditArchive s3blob.AuditArchiveStore

	// Coordination
	Locker       domain.Locker
	RateLimiter  domain.RateLimiter
	AuctionCache *redis.AuctionCache

	// Value movement
	Ledger domain.AssetLedger
	Oracle domain.PriceOracle

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// House is the escrow account for lots and bids.
	House common.Address
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources. In "memory" mode all
// backends are replaced with in-process implementations.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		House: common.HexToAddress(cfg.Auction.HouseAddress),
	}

	memoryMode := strings.ToLower(cfg.Mode) == "memory"

	if memoryMode {
		orderStore := memory.NewOrderStore()
		auditStore := memory.NewAuditStore()
		deps.AuctionStore = memory.NewAuctionStore()
		deps.OrderStore = orderStore
		deps.UserStore = memory.NewUserStore()
		deps.ReferralStore = memory.NewReferralStore()
		deps.AuditStore = auditStore
		deps.OrderArchive = orderStore
		deps.AuditArchive = auditStore
		deps.Locker = memory.NewLocker()
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		orderStore := postgres.NewOrderStore(pool)
		auditStore := postgres.NewAuditStore(pool)
		deps.AuctionStore = postgres.NewAuctionStore(pool)
		deps.OrderStore = orderStore
		deps.UserStore = postgres.NewUserStore(pool)
		deps.ReferralStore = postgres.NewReferralStore(pool)
		deps.AuditStore = auditStore
		deps.OrderArchive = orderStore
		deps.AuditArchive = auditStore

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locker = redis.NewLocker(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.AuctionCache = redis.NewAuctionCache(redisClient)
	}

	// The in-process ledger is the only asset backend; it records escrow
	// balances for the house and all participants.
	deps.Ledger = token.NewLedger()

	// Static oracle loaded from configuration.
	static := oracle.NewStatic()
	for _, rp := range cfg.Auction.ReferencePrices {
		err := static.Set(
			common.HexToAddress(rp.Asset),
			new(big.Int).SetUint64(rp.Numerator),
			new(big.Int).SetUint64(rp.Denominator),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle: %w", err)
		}
	}
	deps.Oracle = static

	// S3 blob storage for the settlement archive.
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.AuctionStore,
			deps.OrderArchive,
			deps.AuditArchive,
			deps.AuditStore,
		)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.Bool("memory_mode", memoryMode),
		slog.Bool("archive", deps.Archiver != nil),
	)

	return deps, cleanup, nil
}
