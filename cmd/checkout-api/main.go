package main

import (
	"context"
	"log"
	"os"

	"github.com/Xolta0/shopify/cmd/checkout-api/app"
	"github.com/Xolta0/shopify/configs"
	"github.com/Xolta0/shopify/internal/logging"
)

func main() {
	env := os.Getenv("APP_ENV") // dev | staging | prod
	if env == "" {
		env = "dev"
	}

	cfg, err := configs.Load("configs", env)
	if err != nil {
		log.Fatal(err)
	}

	logging.Init(logging.Options{Component: cfg.App.Name, File: cfg.App.LogFile, Level: cfg.App.LogLevel})

	ctx, cancel := app.WithSignals(context.Background())
	defer cancel()

	a, cleanup, err := app.InitWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	logging.New("main").Info("checkout-api listening", "env", env, "addr", cfg.App.HTTPAddr)
	err = a.Serve(ctx)
	cleanup()
	if err != nil {
		logging.New("main").Error("server stopped", "err", err)
		os.Exit(1)
	}
}
