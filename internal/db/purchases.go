package db

import (
	"context"

	"github.com/hpungsan/heritage/internal/capsule"
	"github.com/hpungsan/heritage/internal/errors"
	"github.com/hpungsan/heritage/internal/identity"
)

const purchaseColumns = `purchase_id, buyer, timestamp, amount, block_index`

// RecordPurchase appends a purchase record. Purchases are never modified.
func RecordPurchase(ctx context.Context, q Querier, p *capsule.Purchase) error {
	var args [4]int64
	for i, f := range []struct {
		v    uint64
		name string
	}{
		{p.PurchaseID, "purchase id"},
		{p.Timestamp, "timestamp"},
		{p.Amount, "amount"},
		{p.BlockIndex, "block index"},
	} {
		v, err := toInt64(f.v, f.name)
		if err != nil {
			return err
		}
		args[i] = v
	}

	query := `
		INSERT INTO purchases (` + purchaseColumns + `)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query, args[0], string(p.Buyer), args[1], args[2], args[3])
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewDuplicateID("purchase", p.PurchaseID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// ListPurchasesByBuyer returns the buyer's purchases in ascending purchase id order.
func ListPurchasesByBuyer(ctx context.Context, q Querier, buyer identity.Identity) ([]capsule.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases
		WHERE buyer = ?
		ORDER BY purchase_id
	`
	return queryPurchases(ctx, q, query, string(buyer))
}

// ListPurchases returns every purchase in ascending purchase id order.
func ListPurchases(ctx context.Context, q Querier) ([]capsule.Purchase, error) {
	return queryPurchases(ctx, q, `SELECT `+purchaseColumns+` FROM purchases ORDER BY purchase_id`)
}

func queryPurchases(ctx context.Context, q Querier, query string, args ...any) ([]capsule.Purchase, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := []capsule.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

func scanPurchase(row scanner) (*capsule.Purchase, error) {
	var (
		id, ts, amount, block int64
		buyer                 string
	)
	if err := row.Scan(&id, &buyer, &ts, &amount, &block); err != nil {
		return nil, err
	}

	p := &capsule.Purchase{Buyer: identity.Identity(buyer)}
	var err error
	if p.PurchaseID, err = fromInt64(id, "purchase id"); err != nil {
		return nil, err
	}
	if p.Timestamp, err = fromInt64(ts, "timestamp"); err != nil {
		return nil, err
	}
	if p.Amount, err = fromInt64(amount, "amount"); err != nil {
		return nil, err
	}
	if p.BlockIndex, err = fromInt64(block, "block index"); err != nil {
		return nil, err
	}
	return p, nil
}
