// Package stint parses stint runtime flags and launches the command.
package stint

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	entrypoint "github.com/louisbranch/convening.space/internal/platform/cmd"
	"github.com/louisbranch/convening.space/internal/services/stint/app"
)

// Config holds stint command configuration.
type Config struct {
	ContentPath  string        `env:"CONVENING_SPACE_STINT_CONTENT_PATH"`
	DBPath       string        `env:"CONVENING_SPACE_STINT_DB_PATH"`
	RedisAddr    string        `env:"CONVENING_SPACE_STINT_REDIS_ADDR"`
	CacheTTL     time.Duration `env:"CONVENING_SPACE_STINT_CACHE_TTL" envDefault:"5m"`
	Seed         bool
	Teams        int
	HandsPerTeam int
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ContentPath, "content", cfg.ContentPath, "path to the content bundle to load and validate")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path (empty keeps state in memory)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the evaluation cache (empty keeps it in process)")
	fs.BoolVar(&cfg.Seed, "seed", false, "materialize a stint from the bundle")
	fs.IntVar(&cfg.Teams, "teams", 1, "teams to seed")
	fs.IntVar(&cfg.HandsPerTeam, "hands-per-team", 1, "hands per seeded team")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run validates the content bundle and, when asked, seeds a stint.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStint, func(ctx context.Context) error {
		runtime, err := app.Open(ctx, app.Config{
			ContentPath: cfg.ContentPath,
			DBPath:      cfg.DBPath,
			RedisAddr:   cfg.RedisAddr,
			CacheTTL:    cfg.CacheTTL,
		})
		if err != nil {
			return err
		}
		defer runtime.Close()

		fmt.Fprintf(out, "bundle %q: %d modules\n", runtime.Catalog.Name, len(runtime.Catalog.Modules()))
		if !cfg.Seed {
			return nil
		}

		result, err := runtime.Seed(ctx, cfg.Teams, cfg.HandsPerTeam)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "seeded stint %s: %d teams, %d hands\n",
			result.StintID, len(result.TeamIDs), len(result.HandIDs))
		return nil
	})
}
