package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/AryanJadile/restoflow/internal/cart"
	"github.com/AryanJadile/restoflow/internal/config"
	"github.com/AryanJadile/restoflow/internal/httpx"
	kafkax "github.com/AryanJadile/restoflow/internal/kafka"
	"github.com/AryanJadile/restoflow/internal/logging"
	"github.com/AryanJadile/restoflow/internal/orders"
	"github.com/AryanJadile/restoflow/internal/payment"
	"github.com/AryanJadile/restoflow/internal/postgres"
	"github.com/AryanJadile/restoflow/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.Init(cfg.ServiceName, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		return
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order.placed
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	gateway := payment.NewCallbackGateway(cfg.GatewayWait, logging.New("gateway"))

	sessions := payment.NewManager(payment.Deps{
		Gateway: gateway,
		Placer:  repo,
		Pub: payment.PublisherFunc(func(key, value []byte) {
			prod.Publish(key, value,
				kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
				kafkago.Header{Key: "x-event-version", Value: []byte("1")},
			)
		}),
		Carts:    &cart.RedisPersister{RDB: rdb},
		Currency: cfg.Currency,
		Producer: cfg.ServiceName,
		Log:      logging.New("checkout"),
	})

	// Router must outlast a checkout blocked on the gateway popup.
	router := httpx.NewRouter(cfg.GatewayWait + 30*time.Second)
	ph := &httpx.PosHandler{
		Catalog:  repo,
		History:  repo,
		Sessions: sessions,
		Redis:    rdb,
		AdminPIN: cfg.AdminPIN,
		Log:      logging.New("pos"),
	}
	ph.Register(router)
	gh := &httpx.GatewayHandler{GW: gateway, Log: logging.New("gateway")}
	gh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
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

	prod.Close() // close inbox -> flush & close writer
	prod.WaitClosed()
}
