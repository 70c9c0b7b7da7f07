package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/studymill/studymill-backend/internal/app"
)

func main() {
	// Missing .env is fine in deployed environments.
	_ = godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Fatal("failed to start background services", "error", err)
	}

	a.Log.Info("listening", "addr", a.Cfg.HTTPAddr)
	if err := a.Run(); err != nil {
		a.Log.Fatal("http server exited", "error", err)
	}
}
