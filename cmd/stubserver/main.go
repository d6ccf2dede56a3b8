package main

import (
	"log"
	"os"

	"pharmadeal-chat/internal/stubserver"
	"pharmadeal-chat/pkg/logger"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("STUB_ADDR"); v != "" {
		addr = v
	}

	l := logger.New(logger.DevelopmentMode)
	defer l.Logger.Sync()

	srv := stubserver.New(l.Logger)
	log.Printf("Starting stub chat server on %s", addr)
	if err := srv.Run(addr); err != nil {
		log.Fatalf("Failed to start stub server: %v", err)
	}
}
