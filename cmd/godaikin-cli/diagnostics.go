package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// diagnosticsCmd fetches the running daemon's diagnostics snapshot.
func diagnosticsCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("diagnostics", flag.ExitOnError)
	addr := flags.String("addr", "http://localhost:8080", "daemon base URL")
	_ = flags.Parse(args)

	url := strings.TrimRight(*addr, "/") + "/diagnostics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fatal("diagnostics", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("diagnostics", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatal("diagnostics", fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		fatal("diagnostics", err)
	}
}
