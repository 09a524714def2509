// Command clasp runs the CLASP cascade proxy: a local router that fronts
// Anthropic Messages, OpenAI Chat Completions, and OpenAI Responses traffic
// with an ordered tier cascade and adaptive EWMA routing.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/jedarden/clasp-cascade/internal/config"
	"github.com/jedarden/clasp-cascade/internal/logging"
	"github.com/jedarden/clasp-cascade/internal/proxy"
)

var version = "v0.40.0"

type startCmd struct {
	ConfigFile string `help:"Path to the tiers YAML file (overrides CLASP_CONFIG_FILE)." name:"config"`
	Port       int    `help:"Port to listen on (overrides CLASP_PORT/config default)." name:"port"`
	Quiet      bool   `help:"Suppress log output." name:"quiet"`
}

func runStart(c startCmd, stdout, stderr io.Writer) error {
	if c.ConfigFile != "" {
		if err := os.Setenv("CLASP_CONFIG_FILE", c.ConfigFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	if c.Quiet {
		logging.ConfigureQuiet()
	} else {
		logging.ConfigureForProxyOnly()
	}

	server, err := proxy.NewServerWithVersion(cfg, version)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	return server.Start()
}

type statusCmd struct {
	Port int `help:"Port the running CLASP instance listens on." default:"8080" name:"port"`
}

func runStatus(c statusCmd, stdout, stderr io.Writer) error {
	url := fmt.Sprintf("http://localhost:%d/health", c.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(url) //nolint:noctx // one-shot CLI status probe, no caller context to thread through
	if err != nil {
		fmt.Fprintf(stdout, "clasp is not responding on port %d: %v\n", c.Port, err)
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stdout, "clasp on port %d reports unhealthy status: %d\n", c.Port, resp.StatusCode)
		return fmt.Errorf("unhealthy status code %d", resp.StatusCode)
	}

	fmt.Fprintf(stdout, "clasp is running on port %d\n", c.Port)
	return nil
}

type validateCmd struct {
	ConfigFile string `help:"Path to the tiers YAML file to validate." name:"config"`
}

func runValidate(c validateCmd, stdout, stderr io.Writer) error {
	if c.ConfigFile != "" {
		if err := os.Setenv("CLASP_CONFIG_FILE", c.ConfigFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config invalid: %v\n", err)
		return err
	}

	fmt.Fprintf(stdout, "config valid: %d tier(s), %d preset(s)\n", len(cfg.Tiers), len(cfg.Presets))
	for _, t := range cfg.Tiers {
		fmt.Fprintf(stdout, "  tier %-30s dialect=%-16s base_url=%s\n", t.RouteLabel(), t.ProtocolDialect(), t.BaseURL)
	}
	return nil
}

type cli struct {
	Start    startCmd    `cmd:"" help:"Start the cascade proxy server."`
	Status   statusCmd   `cmd:"" help:"Check whether a running CLASP instance is healthy."`
	Validate validateCmd `cmd:"" help:"Load and validate the tiers config without starting the server."`
	Version  struct{}    `cmd:"" help:"Print the CLASP version."`
}

// doMain is grounded on envoyproxy-ai-gateway's cmd/aigw doMain: stdout and
// stderr are threaded through explicitly (rather than via kong.Bind, which
// can't distinguish two same-typed io.Writer bindings) so tests can capture
// output and a non-terminating exitFn without touching the real process.
func doMain(args []string, stdout, stderr io.Writer, exitFn func(int)) {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("clasp"),
		kong.Description("CLASP cascade proxy: tiered LLM routing with adaptive EWMA selection."),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		exitFn(1)
		return
	}

	parsed, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
		return
	}

	var runErr error
	switch parsed.Command() {
	case "start":
		runErr = runStart(c.Start, stdout, stderr)
	case "status":
		runErr = runStatus(c.Status, stdout, stderr)
	case "validate":
		runErr = runValidate(c.Validate, stdout, stderr)
	case "version":
		_, runErr = fmt.Fprintln(stdout, version)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", parsed.Command())
		exitFn(1)
		return
	}

	if runErr != nil {
		fmt.Fprintln(stderr, runErr)
		exitFn(1)
	}
}

func main() {
	doMain(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}
