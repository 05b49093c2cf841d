package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/pigeonmsg/pigeon/internal/app"
	"github.com/pigeonmsg/pigeon/internal/config"
	"github.com/pigeonmsg/pigeon/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "http listen address (overrides config)")
	userFlag := flag.String("user", "", "user id to act as (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Config is optional; flags win over it.
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}
	listenAddr := cfg.ListenAddrOrDefault()
	if *listenFlag != "" {
		listenAddr = *listenFlag
	}
	userID := cfg.UserID
	if *userFlag != "" {
		userID = *userFlag
	}

	fxApp := fx.New(
		app.Module(app.Params{
			SessionName: sessionName,
			UserID:      userID,
			ListenAddr:  listenAddr,
		}),
	)

	fxApp.Run()
}
