package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/AryanJadile/restoflow/internal/config"
	"github.com/AryanJadile/restoflow/internal/httpx"
	kafkax "github.com/AryanJadile/restoflow/internal/kafka"
	"github.com/AryanJadile/restoflow/internal/kitchen"
	"github.com/AryanJadile/restoflow/internal/logging"
	"github.com/AryanJadile/restoflow/internal/orders"
	"github.com/AryanJadile/restoflow/internal/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.Init("kitchen", cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		return
	}
	defer db.Close()

	repo := &orders.Repo{DB: db}
	feed := kitchen.New(repo, &kitchen.LogBell{Log: logging.New("bell")}, cfg.BackfillLimit, logging.New("feed"))

	// Single worker keeps the queue in arrival order.
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.KitchenGroup, orders.TopicOrderPlaced, cfg.KitchenWorkers, logging.New("consumer"))
	if err := feed.Activate(ctx, cons); err != nil {
		log.Error("feed activate", "err", err)
		return
	}
	defer feed.Close()

	router := httpx.NewRouter(15 * time.Second)
	kh := &httpx.KitchenHandler{Feed: feed, PIN: cfg.ChefPIN, Log: logging.New("kitchen")}
	kh.Register(router)

	srv := &http.Server{Addr: cfg.KitchenAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("kitchen display listening", "addr", cfg.KitchenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exit", "err", err)
	}
}
