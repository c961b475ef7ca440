package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/auth"
	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/config"
)

// authCmd performs the initial password exchange, verifies the account can
// list devices, and leaves the saved session behind for the daemon.
func authCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("auth", flag.ExitOnError)
	username := flags.String("username", os.Getenv("GODAIKIN_USERNAME"), "account email")
	password := flags.String("password", os.Getenv("GODAIKIN_PASSWORD"), "account password")
	_ = flags.Parse(args)

	if *username == "" || *password == "" {
		fatal("auth", fmt.Errorf("username and password are required"))
	}

	stateDir := envOrDefault("GODAIKIN_STATE_DIR", config.DefaultStateDir)
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		fatal("auth", err)
	}
	statePath := filepath.Join(stateDir, "auth_state.json")

	manager, err := auth.NewManager(ctx, auth.Config{
		Region:    envOrDefault("GODAIKIN_REGION", config.DefaultRegion),
		ClientID:  envOrDefault("GODAIKIN_CLIENT_ID", config.DefaultClientID),
		Username:  *username,
		Password:  *password,
		StatePath: statePath,
	}, zerolog.Nop())
	if err != nil {
		fatal("auth", err)
	}

	if _, err := manager.Token(ctx); err != nil {
		var authErr *auth.AuthError
		if errors.As(err, &authErr) {
			fatal("auth", fmt.Errorf("invalid credentials: %v", err))
		}
		fatal("auth", fmt.Errorf("could not reach the identity provider: %v", err))
	}

	baseURL := envOrDefault("GODAIKIN_BASE_URL", config.DefaultBaseURL)
	client := cloud.NewClient(baseURL, *username, manager, zerolog.Nop())
	devices, err := client.Devices(ctx)
	if err != nil {
		fatal("auth", fmt.Errorf("authenticated, but listing devices failed: %v", err))
	}
	if len(devices) == 0 {
		fatal("auth", fmt.Errorf("no devices found for this account"))
	}

	fmt.Printf("ok: authenticated as %s, %d device(s), session saved to %s\n", *username, len(devices), statePath)
}
