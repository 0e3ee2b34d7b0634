// erscraped is the EdgeRouter scraper daemon.
//
// Once a minute it polls the router's WAN load-balance status and exports it
// as Prometheus metrics; hourly it archives the running configuration when it
// has changed. Both are served over the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/erconf/pkg/api"
	"github.com/psaab/erconf/pkg/config"
	"github.com/psaab/erconf/pkg/daemon"
	"github.com/psaab/erconf/pkg/logging"
)

func main() {
	router := flag.String("router", "EdgeRouterScraper", "router ssh destination (host or ssh_config alias)")
	flag.StringVar(router, "ip", "EdgeRouterScraper", "alias for -router")
	logDir := flag.String("logdir", "Logs", "snapshot archive directory")
	metricsAddr := flag.String("metrics-addr", ":8000", "HTTP API and /metrics listen address")
	httpsAddr := flag.String("https-addr", "", "HTTPS API listen address (empty to disable)")
	tlsDir := flag.String("tls-dir", "", "directory holding (or receiving) the self-signed cert")
	tokenFile := flag.String("api-token-file", "", "file of API bearer tokens, one per line")
	orderedKeys := flag.String("ordered-keys", "address", "comma-separated entry keys whose order is significant")
	retention := flag.Int("retention", 0, "snapshots to keep in the archive (0 keeps all)")
	syslogAddr := flag.String("syslog", "", "forward logs to this syslog server (host[:port])")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	if *syslogAddr != "" {
		client, err := logging.NewSyslogClient(*syslogAddr, "erscraped")
		if err != nil {
			fmt.Fprintf(os.Stderr, "erscraped: syslog: %v\n", err)
			os.Exit(1)
		}
		sh := logging.NewSyslogHandler(handler)
		sh.SetClient(client)
		defer sh.Close()
		handler = sh
	}
	slog.SetDefault(slog.New(handler))

	var tokens []string
	if *tokenFile != "" {
		data, err := os.ReadFile(*tokenFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "erscraped: %v\n", err)
			os.Exit(1)
		}
		tokens = api.ParseTokens(string(data))
	}

	d := daemon.New(daemon.Options{
		Router:      *router,
		LogDir:      *logDir,
		ListenAddr:  *metricsAddr,
		HTTPSAddr:   *httpsAddr,
		TLSDir:      *tlsDir,
		Tokens:      tokens,
		OrderedKeys: config.ParsePolicy(*orderedKeys).OrderedKeys(),
		Retention:   *retention,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "erscraped: %v\n", err)
		os.Exit(1)
	}
}
