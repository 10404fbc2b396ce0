// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the placetrack service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vorlif/spreak"

	"github.com/wneessen/placetrack/internal/config"
	"github.com/wneessen/placetrack/internal/i18n"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/places"
	"github.com/wneessen/placetrack/internal/presenter"
	"github.com/wneessen/placetrack/internal/service"
)

const appName = "placetrack"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	place := flag.String("place", "", "name of the place to track")
	mode := flag.String("mode", "", "tracking mode (passive or directions)")
	list := flag.Bool("list", false, "list the configured places and exit")
	search := flag.String("search", "", "list the places matching the query and exit")
	sortKey := flag.String("sort", "", "sort order of the place list (date or name)")
	ascending := flag.Bool("asc", false, "sort the place list in ascending order")
	flag.Parse()

	if err := config.LoadDotEnv(dotEnvFiles()...); err != nil {
		log.Error("failed to load environment files", logger.Err(err))
		os.Exit(1)
	}

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if *place != "" {
		conf.Place = *place
	}
	if *mode != "" {
		conf.Mode = *mode
	}
	if *sortKey != "" {
		conf.Sort = *sortKey
	}
	if err = conf.Validate(); err != nil {
		log.Error("invalid command line arguments", logger.Err(err))
		os.Exit(1)
	}

	log = logger.New(conf.LogLevel)
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	if *list || *search != "" {
		if err = printPlaces(conf, t, *search, *ascending); err != nil {
			log.Error("failed to list places", logger.Err(err))
			os.Exit(1)
		}
		return
	}

	// Initialize the service
	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize placetrack service", logger.Err(err))
		os.Exit(1)
	}

	// Start the service loop
	log.Info(t.Get("starting placetrack service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error(t.Get("failed to start placetrack service"), logger.Err(err))
		os.Exit(1)
	}
	log.Info(t.Get("shutting down placetrack service"))
}

// loadConfig reads the config from the given path, the default location or the environment.
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

// printPlaces prints the configured places matching query in the configured sort order.
func printPlaces(conf *config.Config, loc *spreak.Localizer, query string, ascending bool) error {
	key, err := places.ParseSortKey(conf.Sort)
	if err != nil {
		return err
	}
	store, err := places.NewStore(conf.Places)
	if err != nil {
		return err
	}
	if query != "" {
		if store, err = places.NewStore(store.Search(query)); err != nil {
			return err
		}
	}

	pres, err := presenter.New(conf, loc)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, pres.PlaceList(store.List(key, ascending)))
	return err
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", appName, "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}

func dotEnvFiles() []string {
	files := []string{".env"}
	if homedir, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(homedir, ".config", appName, ".env"))
	}
	return files
}
