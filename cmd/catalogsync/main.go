// Command catalogsync validates a YAML catalog of universities and programs,
// upserts it into PostgreSQL, and announces the change on Kafka so running
// searchers rebuild their indexes.
//
// Usage:
//
//	go run ./cmd/catalogsync [--config configs/development.yaml] validate [--catalog configs/catalog.yaml]
//	go run ./cmd/catalogsync [--config configs/development.yaml] sync [--catalog configs/catalog.yaml] [--prune]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog/publisher"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/config"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/logger"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/postgres"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("catalogsync failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	catalogFlag := &cli.StringFlag{
		Name:    "catalog",
		Aliases: []string{"f"},
		Usage:   "Catalog YAML to read (defaults to catalog.filePath)",
	}
	return &cli.App{
		Name:  "catalogsync",
		Usage: "Validate and publish the university and program catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/development.yaml",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Check the catalog without writing it",
				Flags:  []cli.Flag{catalogFlag},
				Action: validateCommand,
			},
			{
				Name:  "sync",
				Usage: "Upsert the catalog into PostgreSQL and publish a change event",
				Flags: []cli.Flag{
					catalogFlag,
					&cli.BoolFlag{
						Name:  "prune",
						Usage: "Delete rows that are not in the catalog file",
					},
				},
				Action: syncCommand,
			},
		},
	}
}

const configKey = "config"

// setup loads the config once and stores it in the app metadata for the
// subcommands.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	return c.App.Metadata[configKey].(*config.Config)
}

// readCatalog reads and validates the catalog named by --catalog, falling
// back to the configured file.
func readCatalog(c *cli.Context) (*catalog.Document, error) {
	path := c.String("catalog")
	if path == "" {
		path = loadedConfig(c).Catalog.FilePath
	}
	doc, err := catalog.NewFile(path).Read()
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	if err := catalog.Validate(doc); err != nil {
		var verr *catalog.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.Fields {
				slog.Error("invalid catalog entry", "field", field, "problem", msg)
			}
		}
		return nil, fmt.Errorf("catalog %s rejected: %w", path, err)
	}
	slog.Info("catalog validated",
		"path", path,
		"universities", len(doc.Universities),
		"programs", len(doc.Programs),
	)
	return doc, nil
}

func validateCommand(c *cli.Context) error {
	_, err := readCatalog(c)
	return err
}

func syncCommand(c *cli.Context) error {
	doc, err := readCatalog(c)
	if err != nil {
		return err
	}
	cfg := loadedConfig(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	var producer publisher.EventPublisher
	if cfg.Kafka.Enabled {
		p := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CatalogChanges)
		defer p.Close()
		producer = p
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.CatalogChanges)
	}

	pub := publisher.New(db, producer)
	if err := pub.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing catalog schema: %w", err)
	}
	res, err := pub.Sync(ctx, doc, c.Bool("prune"))
	if err != nil {
		return fmt.Errorf("syncing catalog: %w", err)
	}
	slog.Info("catalog sync complete",
		"universities", res.Universities,
		"programs", res.Programs,
		"pruned", res.Pruned,
	)
	return nil
}
