package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/raceloop/typerace/go/internal/gateway"
)

func setupServer(cfg *Config, wsHandler *gateway.WebSocketHandler, stateHandler *gateway.StateHandler) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	wsHandler.RegisterRoutes(mux)
	stateHandler.RegisterStateRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
