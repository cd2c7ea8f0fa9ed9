// Command reader is a terminal client for the reader API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"ananse-reader/internal/adapters/readerclient"
	applog "ananse-reader/internal/infra/log"
	"ananse-reader/internal/usecase/reading"
)

type clientConfig struct {
	AppEnv   string        `envconfig:"APP_ENV" default:"prod"`
	APIURL   string        `envconfig:"READER_API_URL" default:"http://localhost:8080"`
	Token    string        `envconfig:"READER_TOKEN"`
	Prefs    string        `envconfig:"READER_PREFS"`
	Timeout  time.Duration `envconfig:"READER_TIMEOUT" default:"10s"`
	Debounce time.Duration `envconfig:"READER_DEBOUNCE" default:"2s"`
}

func main() {
	var cfg clientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "reader: %v\n", err)
		os.Exit(1)
	}
	logger := applog.NewLogger(cfg.AppEnv).Level(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newReader(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reader: %v\n", err)
		os.Exit(1)
	}
	if err := r.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "reader: %v\n", err)
		os.Exit(1)
	}
}

func newReader(cfg clientConfig, logger zerolog.Logger) (*reader, error) {
	api, err := readerclient.New(cfg.APIURL, readerclient.WithToken(cfg.Token), readerclient.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	prefsPath := cfg.Prefs
	if prefsPath == "" {
		if prefsPath, err = reading.DefaultPreferencesPath(); err != nil {
			return nil, fmt.Errorf("locate preferences: %w", err)
		}
	}
	return &reader{
		api:      api,
		prefs:    reading.NewPreferencesStore(prefsPath),
		in:       os.Stdin,
		out:      os.Stdout,
		log:      logger,
		debounce: cfg.Debounce,
	}, nil
}
