package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/storage/postgres"
)

// newImportCmd creates the 'import' subcommand: seeds catalog items from a
// JSON file, classifying sticker metadata from each record's name and
// exclusivity label.
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import catalog items from a JSON seed file",
		Long: `Reads a JSON array of catalog records ({"name", "series", "number",
"variant", "exclusive", "is_vaulted"}), detects chase and exclusivity
stickers from each record, and inserts the items with their value
multipliers. Imported items start unpriced, so the next scheduler pass
picks them up as stale.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCommand,
	}
}

func runImportCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var records []catalog.ImportRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	ctx := cmd.Context()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	defer pool.Close()
	store := postgres.NewCatalogStore(pool)

	imported := 0
	for _, rec := range records {
		if rec.Name == "" || rec.Series == "" {
			logger.Warn("skipping record without name or series", zap.String("name", rec.Name))
			continue
		}
		item := catalog.NewItemFromImport(rec)
		if err := store.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("import %q: %w", rec.Name, err)
		}
		imported++
		if item.IsStickered {
			logger.Debug("sticker detected",
				zap.String("name", item.Name),
				zap.String("sticker_type", item.StickerType),
				zap.Float64("multiplier", item.StickerMultiplier))
		}
	}

	logger.Info("catalog import finished",
		zap.Int("records", len(records)), zap.Int("imported", imported))
	fmt.Printf("imported %d of %d records\n", imported, len(records))
	return nil
}
