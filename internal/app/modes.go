package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auctionlabs/auctiond/internal/auction"
	"github.com/auctionlabs/auctiond/internal/domain"
	"github.com/auctionlabs/auctiond/internal/notify"
	"github.com/auctionlabs/auctiond/internal/orderbook"
	"github.com/auctionlabs/auctiond/internal/referral"
	"github.com/auctionlabs/auctiond/internal/server"
	"github.com/auctionlabs/auctiond/internal/server/handler"
	"github.com/auctionlabs/auctiond/internal/server/ws"
	"github.com/auctionlabs/auctiond/internal/store/postgres"
)

// ServeMode runs the auction house API: the auction and referral services,
// the WebSocket hub, the HTTP server, and (when enabled) the periodic
// settlement archive. It blocks until the context is cancelled or a
// component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	feeParams, err := a.cfg.Auction.FeeParameters()
	if err != nil {
		return fmt.Errorf("app: fee parameters: %w", err)
	}

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Operator notifications, fanned out next to the websocket hub.
	sinks := []domain.EventSink{hub}
	var senders []notify.Sender
	if a.cfg.Notify.TelegramToken != "" && a.cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			a.cfg.Notify.TelegramToken,
			a.cfg.Notify.TelegramChatID,
		))
	}
	if a.cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(a.cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, a.cfg.Notify.Events, a.logger)
		notifySink := notify.NewEventSink(notifier, a.logger)
		g.Go(func() error {
			return notifySink.Run(ctx)
		})
		sinks = append(sinks, notifySink)
	}

	auctionSvc := auction.New(
		deps.AuctionStore,
		deps.OrderStore,
		deps.UserStore,
		deps.ReferralStore,
		deps.AuditStore,
		orderbook.New(),
		deps.Ledger,
		deps.Oracle,
		deps.Locker,
		deps.House,
		feeParams,
		a.logger,
	).WithEventSink(fanSink(sinks))
	if deps.AuctionCache != nil {
		auctionSvc = auctionSvc.WithCache(deps.AuctionCache)
	}

	// Rebuild the in-memory books from durable storage before serving.
	if err := auctionSvc.LoadBooks(ctx); err != nil {
		return fmt.Errorf("app: load books: %w", err)
	}

	referralSvc := referral.New(deps.ReferralStore, deps.Ledger, deps.House, a.logger)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Users:     handler.NewUserHandler(auctionSvc, a.logger),
		Auctions:  handler.NewAuctionHandler(auctionSvc, a.logger),
		Orders:    handler.NewOrderHandler(auctionSvc, a.logger),
		Referrals: handler.NewReferralHandler(referralSvc, a.logger),
		Admin:     handler.NewAdminHandler(auctionSvc, referralSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		AdminAPIKey:     a.cfg.Server.AdminAPIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// fanSink forwards each event to every registered sink.
type fanSink []domain.EventSink

func (f fanSink) Publish(ev domain.Event) {
	for _, s := range f {
		s.Publish(ev)
	}
}

// runArchiveLoop periodically exports settled auctions and old audit
// entries to blob storage. Failures are logged and retried on the next
// tick rather than terminating the application.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archive loop started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		recs, err := deps.AuctionStore.List(ctx, domain.ListOpts{})
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: list auctions failed", slog.String("error", err.Error()))
			continue
		}
		for _, rec := range recs {
			if !rec.Settled() {
				continue
			}
			// Reports are immutable once written; skip auctions already
			// exported.
			path := fmt.Sprintf("archive/auctions/%d.json", rec.ID)
			if ok, err := deps.BlobReader.Exists(ctx, path); err == nil && ok {
				continue
			}
			count, err := deps.Archiver.ArchiveAuction(ctx, rec.ID)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive: auction export failed",
					slog.Uint64("auction_id", rec.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "archive: auction exported",
				slog.Uint64("auction_id", rec.ID),
				slog.Int64("orders", count),
			)
		}

		cutoff := time.Now().Add(-retention)
		count, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: audit export failed", slog.String("error", err.Error()))
			continue
		}
		if count > 0 {
			a.logger.InfoContext(ctx, "archive: audit exported", slog.Int64("entries", count))
		}
	}
}

// MigrateMode connects to Postgres, applies all pending migrations, and
// exits.
func (a *App) MigrateMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "running migrations")

	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      a.cfg.Postgres.DSN,
		Host:     a.cfg.Postgres.Host,
		Port:     a.cfg.Postgres.Port,
		Database: a.cfg.Postgres.Database,
		User:     a.cfg.Postgres.User,
		Password: a.cfg.Postgres.Password,
		SSLMode:  a.cfg.Postgres.SSLMode,
		MaxConns: a.cfg.Postgres.PoolMaxConns,
		MinConns: a.cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("app: postgres: %w", err)
	}
	defer pgClient.Close()

	if err := pgClient.RunMigrations(ctx); err != nil {
		return fmt.Errorf("app: migrations: %w", err)
	}

	a.logger.InfoContext(ctx, "migrations complete")
	return nil
}
