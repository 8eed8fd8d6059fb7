package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rhbridge/internal/auth"
	"rhbridge/internal/brokerage"
	"rhbridge/internal/config"
	"rhbridge/internal/httpserver"
	"rhbridge/internal/instrument"
	"rhbridge/internal/orders"
	"rhbridge/internal/stoploss"
	"rhbridge/internal/ticker"
	"rhbridge/internal/trading"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := brokerage.NewClient(cfg.APIBase)
	credStore := auth.NewCredStore(cfg.CredFile, cfg.CredKey)
	mgr := auth.NewManager(client, credStore, cfg.Username, cfg.Password)
	mgr.StartAutoLogin(bg, cfg.AutoLoginDelay)

	resolver := instrument.NewResolver(client)
	tracker := orders.NewTracker(client)
	stops := stoploss.NewCache()
	coord := stoploss.NewCoordinator(client, resolver, tracker)
	tradeSvc := trading.NewService(bg, mgr, client, resolver, tracker, stops, coord, trading.Options{
		CancelMode:      cfg.SellCancelMode,
		AutoStopEnabled: cfg.AutoStopEnabled,
		AutoStopMaxWait: cfg.AutoStopMaxWait,
		BuyWholeShares:  cfg.BuyWholeShares,
	})

	tickerStore := ticker.NewStore(cfg.TickerLimit)
	tickerHub := ticker.NewHub()

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(mgr),
		TradeHandler:  trading.NewHandler(tradeSvc),
		TickerHandler: ticker.NewHandler(tickerStore, tickerHub, cfg.WebSocketOrigin),
		InternalToken: cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("bridge listening on %s", cfg.HTTPAddr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	tradeSvc.Wait()
}
