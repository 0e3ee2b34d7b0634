// erctl is the operator shell for erscraped.
//
// With -api it talks to a running daemon over HTTP; otherwise it reads the
// snapshot archive in -logdir directly and, with -router, polls the router
// itself for load-balance status.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/psaab/erconf/pkg/api"
	"github.com/psaab/erconf/pkg/cli"
	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/configstore"
	"github.com/psaab/erconf/pkg/poll"
)

func main() {
	apiURL := flag.String("api", "", "erscraped API base URL, e.g. http://127.0.0.1:8000")
	tokenFile := flag.String("token-file", "", "file holding the API bearer token")
	logDir := flag.String("logdir", "Logs", "snapshot archive directory (without -api)")
	router := flag.String("router", "", "router ssh destination for load-balance status (without -api)")
	orderedKeys := flag.String("ordered-keys", "address", "comma-separated entry keys whose order is significant")
	command := flag.String("c", "", "run one command and exit")
	flag.Parse()

	policy := config.ParsePolicy(*orderedKeys)

	var backend cli.Backend
	if *apiURL != "" {
		token := ""
		if *tokenFile != "" {
			data, err := os.ReadFile(*tokenFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "erctl: %v\n", err)
				os.Exit(1)
			}
			if tokens := api.ParseTokens(string(data)); len(tokens) > 0 {
				token = tokens[0]
			}
		}
		client := api.NewClient(*apiURL, token)

		// Verify connectivity
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := client.History(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "erctl: cannot reach erscraped at %s: %v\n", *apiURL, err)
			os.Exit(1)
		}
		backend = client
	} else {
		local := &cli.Local{Store: configstore.New(*logDir, policy)}
		if *router != "" {
			local.Runner = poll.NewSSH(*router)
		}
		backend = local
	}

	c := cli.New(backend, policy, os.Stdout)

	if *command != "" {
		if err := c.Execute(strings.TrimSpace(*command)); err != nil {
			fmt.Fprintf(os.Stderr, "erctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "erctl: %v\n", err)
		os.Exit(1)
	}
}
