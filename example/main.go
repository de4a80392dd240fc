package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/davecgh/go-spew/spew"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/mickamy/relmap/example/model"
	"github.com/mickamy/relmap/example/repo"
	"github.com/mickamy/relmap/orm"
	"github.com/mickamy/relmap/scope"
)

// config is read from the optional -config YAML file. Flags given on the
// command line win over it.
type config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Debug  bool   `yaml:"debug"`
	Dump   bool   `yaml:"dump"`
}

var schemas = map[string][]string{
	"mysql": {
		`CREATE TABLE albums (id BIGINT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		`CREATE TABLE tracks (id BIGINT AUTO_INCREMENT PRIMARY KEY, album_id BIGINT NULL, title VARCHAR(255) NOT NULL)`,
		`CREATE TABLE tags (id BIGINT AUTO_INCREMENT PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		`CREATE TABLE track_tags (id BIGINT AUTO_INCREMENT PRIMARY KEY, track_id BIGINT NOT NULL, tag_id BIGINT NOT NULL)`,
	},
	"postgres": {
		`CREATE TABLE albums (id BIGSERIAL PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		`CREATE TABLE tracks (id BIGSERIAL PRIMARY KEY, album_id BIGINT NULL, title VARCHAR(255) NOT NULL)`,
		`CREATE TABLE tags (id BIGSERIAL PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		`CREATE TABLE track_tags (id BIGSERIAL PRIMARY KEY, track_id BIGINT NOT NULL, tag_id BIGINT NOT NULL)`,
	},
	"sqlite": {
		`CREATE TABLE albums (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE tracks (id INTEGER PRIMARY KEY AUTOINCREMENT, album_id INTEGER NULL, title TEXT NOT NULL)`,
		`CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE track_tags (id INTEGER PRIMARY KEY AUTOINCREMENT, track_id INTEGER NOT NULL, tag_id INTEGER NOT NULL)`,
	},
}

func main() {
	cfg := config{Driver: "sqlite", DSN: "file::memory:?cache=shared"}

	configPath := flag.String("config", "", "YAML config file (driver, dsn, debug, dump)")
	driver := flag.String("driver", cfg.Driver, "database driver (sqlite, mysql, pgx or postgres)")
	dsn := flag.String("dsn", cfg.DSN, "data source name")
	debug := flag.Bool("debug", false, "log every statement")
	dump := flag.Bool("dump", false, "dump materialized instances")
	flag.Parse()

	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			cfg.Driver = *driver
		case "dsn":
			cfg.DSN = *dsn
		case "debug":
			cfg.Debug = *debug
		case "dump":
			cfg.Dump = *dump
		}
	})

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(path string, cfg *config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	db, err := orm.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	db = db.Debug(orm.NewSlogLogger(logger))

	// CREATE TABLE
	logger.Info("creating tables", slog.String("driver", cfg.Driver))
	for _, table := range []string{"track_tags", "tags", "tracks", "albums"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	for _, stmt := range schemas[db.Dialect().Name()] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	defs, err := model.Register(orm.NewRegistry(db))
	if err != nil {
		return err
	}
	albums := repo.NewAlbumRepository(defs)

	// INSERT
	catch, err := albums.Create(ctx, "Catch a Fire")
	if err != nil {
		return fmt.Errorf("create album: %w", err)
	}
	burnin, err := albums.Create(ctx, "Burnin'")
	if err != nil {
		return fmt.Errorf("create album: %w", err)
	}
	for _, title := range []string{"Concrete Jungle", "Stir It Up"} {
		track, err := albums.AddTrack(ctx, catch, title)
		if err != nil {
			return fmt.Errorf("add track: %w", err)
		}
		if _, err := albums.Tag(ctx, track, "reggae"); err != nil {
			return fmt.Errorf("tag track: %w", err)
		}
	}
	if _, err := albums.AddTrack(ctx, burnin, "Get Up, Stand Up"); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	logger.Info("inserted", slog.Any("albums", []any{catch.PK(), burnin.PK()}))

	// SELECT with relations
	q := db.Dialect().QuoteIdent
	loaded, err := albums.FindWithTracks(ctx, scope.OrderBy(q("albums")+"."+q("id")+", "+q("tracks")+"."+q("id")))
	if err != nil {
		return fmt.Errorf("find albums: %w", err)
	}
	for _, a := range loaded {
		logger.Info("album", slog.String("name", a.Name), slog.Int("tracks", len(a.Tracks)))
		for _, t := range a.Tracks {
			logger.Info("  track", slog.String("title", t.Title), slog.Int("tags", len(t.Tags)))
		}
	}
	if cfg.Dump {
		spew.Fdump(os.Stdout, loaded)
	}

	// UPDATE
	if err := albums.Rename(ctx, burnin, "Burnin' (Deluxe)"); err != nil {
		return fmt.Errorf("rename album: %w", err)
	}
	found, err := albums.FindByID(ctx, burnin.PK())
	if err != nil {
		return fmt.Errorf("find album: %w", err)
	}
	if cfg.Dump {
		spew.Fdump(os.Stdout, found.ToMap())
	}

	// DELETE
	n, err := albums.Delete(ctx, burnin)
	if err != nil {
		return fmt.Errorf("delete album: %w", err)
	}
	if _, err := found.Load(ctx); !errors.Is(err, orm.ErrGone) {
		return fmt.Errorf("expected deleted album to be gone, got %v", err)
	}
	remaining, err := albums.Count(ctx)
	if err != nil {
		return fmt.Errorf("count albums: %w", err)
	}
	logger.Info("deleted", slog.Int64("rows", n), slog.Int64("remaining", remaining))
	return nil
}
