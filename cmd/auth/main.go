package main

import (
	"log"

	"github.com/pulsemetric/insight/internal/auth/app"
)

func main() {
	a, err := app.New(app.LoadConfig())
	if err != nil {
		log.Fatalf("auth service startup: %v", err)
	}

	// Run blocks until shutdown is requested or the server fails.
	if err := a.Run(); err != nil {
		log.Fatalf("auth service exited: %v", err)
	}
}
