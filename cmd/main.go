package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cfgPkg "github.com/xhad/ragdesk/pkg/config"
)

const usage = `usage: ragdesk <command> [flags]

commands:
  serve    run the HTTP API
  ingest   add files or URLs to a scope and index them
  ask      chat with a scope from the terminal
`

type Flags struct {
	ConfigPath string
	Scope      string
	Addr       string
	Provider   string
	Model      string
	APIKey     string
	TopK       int
}

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	flags, rest, err := parseFlags(command, args)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, flags, rest); err != nil {
		log.Fatal(err)
	}
}

func parseFlags(command string, args []string) (Flags, []string, error) {
	var flags Flags
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&flags.Scope, "scope", "default", "Document scope")
	fs.StringVar(&flags.Addr, "addr", "", "Listen address (overrides server.addr)")
	fs.StringVar(&flags.Provider, "provider", "", "Generation provider (overrides generation.default_provider)")
	fs.StringVar(&flags.Model, "model", "", "Generation model (overrides generation.default_model)")
	fs.StringVar(&flags.APIKey, "api-key", "", "Generation API key (overrides generation.api_key)")
	fs.IntVar(&flags.TopK, "top-k", 0, "Chunks per answer (overrides search.top_k)")
	if err := fs.Parse(args); err != nil {
		return flags, nil, err
	}
	return flags, fs.Args(), nil
}

func loadConfig(flags Flags) (*cfgPkg.Config, error) {
	cfg, err := cfgPkg.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Command line flags win over the file and the environment
	if flags.Addr != "" {
		cfg.Server.Addr = flags.Addr
	}
	if flags.Provider != "" {
		cfg.Generation.DefaultProvider = flags.Provider
	}
	if flags.Model != "" {
		cfg.Generation.DefaultModel = flags.Model
	}
	if flags.APIKey != "" {
		cfg.Generation.APIKey = flags.APIKey
	}
	if flags.TopK > 0 {
		cfg.Search.TopK = flags.TopK
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return cfg, nil
}

func run(ctx context.Context, command string, flags Flags, args []string) error {
	switch command {
	case "serve", "ingest", "ask":
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	switch command {
	case "serve":
		return app.serve(ctx)
	case "ingest":
		return app.ingest(ctx, flags.Scope, args)
	default:
		return app.ask(ctx, flags.Scope)
	}
}
