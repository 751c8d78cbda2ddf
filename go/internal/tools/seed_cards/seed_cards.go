package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/cubedraft/go/clients/ygoprodeck"
	"github.com/mcdev12/cubedraft/go/internal/cube"
	"github.com/mcdev12/cubedraft/go/internal/dbconfig"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

type seedConfig struct {
	CubeFile string `env:"CUBE_FILE" envDefault:"go/internal/assets/cube.yaml"`
	// Fetch pulls metadata for every cube card from the card API before writing.
	Fetch      bool   `env:"SEED_FETCH" envDefault:"true"`
	APIBaseURL string `env:"CARDS_API_BASE_URL"`
}

// The cards table is created by the API server's migrations.
func main() {
	ctx := context.Background()

	var cfg seedConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse config: %v\n", err)
		os.Exit(1)
	}

	// 1) Load the cube list
	c, err := cube.LoadFile(cfg.CubeFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load cube: %v\n", err)
		os.Exit(1)
	}
	cards := mergeMetadata(ctx, c, cfg)

	// 2) Connect using shared dbconfig
	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load database config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, dbCfg.PostgresURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total    = len(cards)
		upserted int
		skipped  int
		errs     int
	)
	now := time.Now().UnixMilli()

	for _, card := range cards {
		if card.Name == "" {
			fmt.Fprintf(os.Stderr, "skipping card %d: no name in cube or card API\n", card.ID)
			skipped++
			continue
		}
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO cards (id, name, type, rarity, data, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO UPDATE SET
              name = excluded.name,
              type = excluded.type,
              rarity = excluded.rarity,
              data = COALESCE(excluded.data, cards.data),
              updated_at = excluded.updated_at
        `,
			card.ID, card.Name, card.Type, card.Rarity, jsonOrNil(card.Data), now,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting card %d: %v\n", card.ID, err)
			errs++
			continue
		}
		upserted += int(cmdTag.RowsAffected())
	}

	// 4) Print summary
	fmt.Printf(
		"Cards seed complete (%s): %d total, %d upserted, %d skipped, %d errors\n",
		c.Name, total, upserted, skipped, errs,
	)
}

// mergeMetadata returns one card per distinct id, with card API fields filling
// whatever the cube left blank.
func mergeMetadata(ctx context.Context, c *cube.Cube, cfg seedConfig) []models.Card {
	byID := make(map[int]models.Card, len(c.Cards))
	for _, card := range c.Cards {
		if _, ok := byID[card.ID]; !ok {
			byID[card.ID] = card
		}
	}

	if cfg.Fetch {
		fetched, err := ygoprodeck.NewClient(cfg.APIBaseURL).FetchCards(ctx, c.IDs())
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch card metadata: %v\n", err)
		}
		for _, meta := range fetched {
			card := byID[meta.ID]
			if card.Name == "" {
				card.Name = meta.Name
			}
			if card.Type == "" {
				card.Type = meta.Type
			}
			if card.Rarity == "" {
				card.Rarity = meta.Rarity
			}
			card.Data = meta.Data
			byID[meta.ID] = card
		}
	}

	out := make([]models.Card, 0, len(byID))
	for _, id := range c.IDs() {
		out = append(out, byID[id])
	}
	return out
}

func jsonOrNil(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
