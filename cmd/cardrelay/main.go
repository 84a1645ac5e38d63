package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/card-relay/configs"
	"github.com/avvvet/card-relay/internal/app"
	"github.com/avvvet/card-relay/internal/auth"
	"github.com/avvvet/card-relay/internal/db"
	"github.com/avvvet/card-relay/internal/nats"
	"github.com/avvvet/card-relay/internal/socketsvc/broker"
	"github.com/avvvet/card-relay/internal/socketsvc/ws"
	"github.com/avvvet/card-relay/internal/store"
)

const SERVICE_NAME = "cardrelay"

var instanceId string

func init() {
	config.Logging(SERVICE_NAME + "_service")
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	hub := ws.NewWs()

	// NATS is only needed when several relay instances share subscribers
	if cfg.NatsURL != "" {
		n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
		if err != nil {
			log.Fatalf("Error: unable to connect to NATS server %v", err)
		}
		defer n.Conn.Close()
		log.Printf("NATS connection established successfully %s", n.Url)

		hub.Broker = broker.NewBroker(n.Conn, instanceId, hub.Broadcast)
		sub, err := hub.Broker.Subscribe(broker.Topic)
		if err != nil {
			log.Fatalf("Error: unable to subscribe to %s %v", broker.Topic, err)
		}
		defer sub.Unsubscribe()
	}

	var credentials auth.CredentialStore
	if cfg.PostgresURL != "" {
		dbpool, err := db.Connect(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer dbpool.Close()
		log.Printf("pg connection established successfully")
		credentials = store.NewCredentialStore(dbpool)
	}

	a, err := app.New(cfg, hub, credentials)
	if err != nil {
		log.Fatalf("unable to build %s service: %v", SERVICE_NAME, err)
	}

	errc, err := a.Start()
	if err != nil {
		log.Fatalf("unable to start %s service: %v", SERVICE_NAME, err)
	}
	log.Infof("%s service running, main port %s socket port %s", SERVICE_NAME, cfg.ServerPort, cfg.SocketPort)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Infof("%s signal received: closing HTTP servers", sig)
	case err := <-errc:
		log.Errorf("listener failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown failed: %+v", SERVICE_NAME, err)
		return
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
