package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshp123/godaikin/internal/auth"
	"github.com/joshp123/godaikin/internal/cloud"
	"github.com/joshp123/godaikin/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "auth":
		authCmd(ctx, os.Args[2:])
	case "devices":
		devicesCmd(ctx, os.Args[2:])
	case "status":
		statusCmd(ctx, os.Args[2:])
	case "set":
		setCmd(ctx, os.Args[2:])
	case "diagnostics":
		diagnosticsCmd(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// cliClient builds a cloud client from the environment. The password may be
// absent once `auth` has saved a session.
func cliClient(ctx context.Context) *cloud.Client {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fatal("config", err)
	}
	manager, err := auth.NewManager(ctx, auth.Config{
		Region:    cfg.Region,
		ClientID:  cfg.ClientID,
		Username:  cfg.Username,
		Password:  cfg.Password,
		StatePath: cfg.AuthStatePath(),
	}, zerolog.Nop())
	if err != nil {
		fatal("auth", err)
	}
	return cloud.NewClient(cfg.BaseURL, cfg.Username, manager, zerolog.Nop())
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func usage() {
	fmt.Println("godaikin-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  auth -username <email> -password <password>")
	fmt.Println("  devices [-json]")
	fmt.Println("  status -device <id> [-json]")
	fmt.Println("  set -device <id> [-power on|off] [-mode m] [-temp n] [-fan f] [-swing s] [-hswing s] [-preset p] [-led on|off]")
	fmt.Println("  diagnostics [-addr http://host:8080]")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
