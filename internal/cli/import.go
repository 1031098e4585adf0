package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/trendcast/internal/config"
	"github.com/lazypower/trendcast/internal/forecast"
	"github.com/lazypower/trendcast/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import meme documents from JSON",
	Long:  "Load a JSON array of meme documents into the memes collection. Documents with an \"id\" are upserted under that id; others get a new id. Use - for stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := importMemes(context.Background(), db, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d memes.\n", n)
	return nil
}

// importMemes stores each object of the JSON array read from r.
func importMemes(ctx context.Context, db *store.DB, r io.Reader) (int, error) {
	var docs []map[string]any
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, fmt.Errorf("decode memes: %w", err)
	}

	for i, fields := range docs {
		id, _ := fields["id"].(string)
		delete(fields, "id")

		if id == "" {
			if _, err := db.Add(ctx, forecast.CollectionMemes, fields); err != nil {
				return i, fmt.Errorf("import meme %d: %w", i, err)
			}
			continue
		}
		if err := db.Put(ctx, forecast.CollectionMemes, id, fields); err != nil {
			return i, fmt.Errorf("import meme %s: %w", id, err)
		}
	}
	return len(docs), nil
}
