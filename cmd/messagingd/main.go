package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/creatorhub/messaging/internal/config"
	"github.com/creatorhub/messaging/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = os.Getenv("MESSAGING_JWT_SECRET")
	}
	if cfg.Server.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "error: no JWT secret configured (set server.jwt_secret or MESSAGING_JWT_SECRET)")
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
	)

	app.Run()
}
