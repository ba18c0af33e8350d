// Command flexiond runs the session API server.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaitworks/flexion/internal/api"
	"github.com/gaitworks/flexion/internal/config"
	"github.com/gaitworks/flexion/internal/db"
	"github.com/gaitworks/flexion/internal/fusion"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "flexion.db", "SQLite database path (empty disables persistence)")
	configFile = flag.String("config", "", "tuning config JSON path")
	mqttBroker = flag.String("mqtt", "", "MQTT broker URL for live fused-angle publishing (e.g. tcp://localhost:1883)")
)

func main() {
	flag.Parse()
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configFile)
	}

	var store *db.DB
	if *dbFile != "" {
		var err error
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		log.Printf("opened database %s", *dbFile)
	}

	var pub api.Publisher
	if *mqttBroker != "" {
		mqttPub, err := api.NewMQTTPublisher(*mqttBroker, "flexiond")
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer mqttPub.Close()
		pub = mqttPub
		log.Printf("publishing fused angles to %s", *mqttBroker)
	}

	registry := fusion.NewRegistry(cfg.FilterConfig())
	server := api.NewServer(registry, store, cfg, pub)

	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}

	go func() {
		log.Printf("listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Print("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
