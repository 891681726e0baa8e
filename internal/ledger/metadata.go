package ledger

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Metadata is the ledger's read-only description.
type Metadata struct {
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	Decimals    uint8      `json:"decimals"`
	Fee         uint64     `json:"fee"`
	TotalSupply uint64     `json:"total_supply"`
	Standards   []Standard `json:"supported_standards"`
}

// FetchMetadata issues all read-only metadata calls concurrently.
// The first failure cancels the rest.
func FetchMetadata(ctx context.Context, c Client) (*Metadata, error) {
	var m Metadata
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		m.Name, err = c.Name(ctx)
		return errors.Wrap(err, "name")
	})
	g.Go(func() (err error) {
		m.Symbol, err = c.Symbol(ctx)
		return errors.Wrap(err, "symbol")
	})
	g.Go(func() (err error) {
		m.Decimals, err = c.Decimals(ctx)
		return errors.Wrap(err, "decimals")
	})
	g.Go(func() (err error) {
		m.Fee, err = c.Fee(ctx)
		return errors.Wrap(err, "fee")
	})
	g.Go(func() (err error) {
		m.TotalSupply, err = c.TotalSupply(ctx)
		return errors.Wrap(err, "total supply")
	})
	g.Go(func() (err error) {
		m.Standards, err = c.SupportedStandards(ctx)
		return errors.Wrap(err, "supported standards")
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "fetch ledger metadata")
	}
	if m.Standards == nil {
		m.Standards = []Standard{}
	}
	return &m, nil
}
