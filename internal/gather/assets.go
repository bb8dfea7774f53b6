package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"mateo/internal/domain"
	"mateo/internal/store"
	"mateo/internal/util"
)

var _ Gatherer = (*AssetSyncGatherer)(nil)

// AssetSyncGatherer syncs the tradable asset list from the Alpaca trading
// API into the symbol metadata store. Equities keep their symbol as-is;
// crypto pairs are flattened to match bar storage.
type AssetSyncGatherer struct {
	client *alpaca.Client
	meta   store.MetadataStore
	log    *slog.Logger
}

// NewAssetSyncGatherer creates an AssetSyncGatherer with the given Alpaca
// credentials and target metadata store.
func NewAssetSyncGatherer(apiKey, apiSecret, baseURL string, meta store.MetadataStore) *AssetSyncGatherer {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}

	return &AssetSyncGatherer{
		client: alpaca.NewClient(opts),
		meta:   meta,
		log:    slog.Default().With("gatherer", "asset-sync"),
	}
}

// Name returns the gatherer identifier.
func (g *AssetSyncGatherer) Name() string { return "asset-sync" }

// Run fetches active equity and crypto assets and upserts their metadata.
func (g *AssetSyncGatherer) Run(ctx context.Context) error {
	classes := []struct {
		class     string
		assetType string
	}{
		{"us_equity", domain.AssetTypeStock},
		{"crypto", domain.AssetTypeCrypto},
	}

	for _, c := range classes {
		if err := ctx.Err(); err != nil {
			return err
		}

		var assets []alpaca.Asset
		err := util.Retry(ctx, fetchAttempts, fetchBaseDelay, func() error {
			var ferr error
			assets, ferr = g.client.GetAssets(alpaca.GetAssetsRequest{
				Status:     "active",
				AssetClass: c.class,
			})
			return ferr
		})
		if err != nil {
			return fmt.Errorf("GetAssets(%s): %w", c.class, err)
		}

		rows := assetsToMeta(assets, c.assetType)
		if len(rows) == 0 {
			g.log.Info("no assets returned", "class", c.class)
			continue
		}
		if err := g.meta.SaveSymbolMeta(ctx, rows); err != nil {
			return fmt.Errorf("saving %s metadata: %w", c.class, err)
		}
		g.log.Info("synced assets", "class", c.class, "count", len(rows))
	}
	return nil
}

// assetsToMeta maps tradable Alpaca assets onto metadata rows, skipping
// non-tradable listings and empty symbols.
func assetsToMeta(assets []alpaca.Asset, assetType string) []domain.SymbolMeta {
	rows := make([]domain.SymbolMeta, 0, len(assets))
	for _, a := range assets {
		if !a.Tradable || a.Symbol == "" {
			continue
		}
		symbol := strings.ToUpper(a.Symbol)
		if assetType == domain.AssetTypeCrypto {
			symbol = flattenPair(symbol)
		}
		rows = append(rows, domain.SymbolMeta{
			Symbol:    symbol,
			Name:      a.Name,
			Exchange:  string(a.Exchange),
			AssetType: assetType,
		})
	}
	return rows
}
