package main

import (
	"context"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/HanTheDev/payload-listener/internal/capture"
	"github.com/HanTheDev/payload-listener/internal/config"
	"github.com/HanTheDev/payload-listener/internal/db"
	"github.com/HanTheDev/payload-listener/internal/listener"
	"github.com/HanTheDev/payload-listener/internal/render"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	flags := 0
	if cfg.LogTimestamps {
		flags = log.LstdFlags
	}
	logger := log.New(os.Stdout, "", flags)

	format, err := render.ParseFormat(cfg.RenderFormat)
	if err != nil {
		log.Fatal("Invalid render format:", err)
	}
	renderer, err := render.New(render.Options{
		Format: format,
		Depth:  cfg.RenderDepth,
		Colors: useColors(cfg.Color),
	})
	if err != nil {
		log.Fatal("Failed to initialize renderer:", err)
	}

	var recorders []listener.Recorder

	// Optional Postgres history
	if cfg.DatabaseURL != "" {
		database, err := db.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		defer database.Close()

		if err := database.EnsureSchema(context.Background()); err != nil {
			log.Fatal("Failed to create observations table:", err)
		}
		recorders = append(recorders, listener.RecorderFunc(database.LogObservation))
	}

	// Optional Redis feed
	if cfg.RedisURL != "" {
		feed, err := capture.NewRedisRecorder(cfg.RedisURL, capture.RedisOptions{
			Key:        cfg.RedisKey,
			Channel:    cfg.RedisChannel,
			MaxEntries: cfg.RedisMaxEntries,
		})
		if err != nil {
			log.Fatal("Failed to initialize redis feed:", err)
		}
		defer feed.Close()

		if err := feed.Ping(context.Background()); err != nil {
			log.Fatal("Failed to reach redis:", err)
		}
		recorders = append(recorders, feed)
	}

	srv := listener.New(logger, listener.Options{
		Renderer:     renderer,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Recorders:    recorders,
	})

	if err := srv.BindWildcards(context.Background(), listener.Port, cfg.RequireAllBinds); err != nil {
		log.Fatal("Failed to bind:", err)
	}
	if err := srv.Serve(); err != nil {
		log.Fatal("Server failed:", err)
	}
}

func useColors(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	// fatih/color has already checked whether stdout is a terminal.
	return !color.NoColor
}
