package ledger

import (
	"context"
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/hpungsan/heritage/internal/identity"
)

// DefaultFee is the per-transfer fee of the in-process ledger, in base units.
const DefaultFee = 10_000

// MemoryOptions configures an in-process ledger.
type MemoryOptions struct {
	Name     string
	Symbol   string
	Decimals uint8
	Fee      uint64
	Balances map[identity.Identity]uint64
}

// Memory is an in-process ledger for development and tests.
// The fee is burned.
type Memory struct {
	mu       sync.Mutex
	opts     MemoryOptions
	balances map[identity.Identity]uint64
	blocks   []TransferArgs
	failNext []error
	unavail  error
}

var _ Client = (*Memory)(nil)

// NewMemory creates an in-process ledger. Zero-valued options fall back to ICP-like defaults.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.Name == "" {
		opts.Name = "Internet Computer"
	}
	if opts.Symbol == "" {
		opts.Symbol = "ICP"
	}
	if opts.Decimals == 0 {
		opts.Decimals = 8
	}
	if opts.Fee == 0 {
		opts.Fee = DefaultFee
	}

	balances := make(map[identity.Identity]uint64, len(opts.Balances))
	for k, v := range opts.Balances {
		balances[k] = v
	}
	opts.Balances = nil

	return &Memory{opts: opts, balances: balances}
}

// Mint credits amount to account outside the transfer log.
func (m *Memory) Mint(account identity.Identity, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// FailNextTransfer makes the next Transfer call return err without moving funds.
// Calls queue up.
func (m *Memory) FailNextTransfer(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, err)
}

// SetUnavailable makes every call return err until cleared with nil.
func (m *Memory) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavail = err
}

// Transfers returns a copy of the accepted transfers in block order.
func (m *Memory) Transfers() []TransferArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransferArgs, len(m.blocks))
	copy(out, m.blocks)
	return out
}

func (m *Memory) BalanceOf(ctx context.Context, account identity.Identity) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	return m.balances[account], nil
}

func (m *Memory) Transfer(ctx context.Context, args TransferArgs) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, errors.WithStack(&TransferError{Kind: KindTransport, Message: err.Error()})
	}
	if len(m.failNext) > 0 {
		err := m.failNext[0]
		m.failNext = m.failNext[1:]
		return 0, err
	}

	if args.Fee != nil && *args.Fee != m.opts.Fee {
		return 0, errors.WithStack(&TransferError{Kind: KindBadFee, ExpectedFee: m.opts.Fee})
	}
	if args.Amount > math.MaxUint64-m.opts.Fee {
		return 0, NewTransferError(KindGenericError, "amount overflows")
	}
	debit := args.Amount + m.opts.Fee
	balance := m.balances[args.From]
	if balance < debit {
		return 0, errors.WithStack(&TransferError{Kind: KindInsufficientFunds, Balance: balance})
	}

	m.balances[args.From] = balance - debit
	m.balances[args.To] += args.Amount
	m.blocks = append(m.blocks, args)
	return uint64(len(m.blocks) - 1), nil
}

func (m *Memory) Name(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Name, m.check(ctx)
}

func (m *Memory) Symbol(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Symbol, m.check(ctx)
}

func (m *Memory) Decimals(ctx context.Context) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Decimals, m.check(ctx)
}

func (m *Memory) Fee(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Fee, m.check(ctx)
}

func (m *Memory) TotalSupply(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	var total uint64
	for _, b := range m.balances {
		total += b
	}
	return total, nil
}

func (m *Memory) SupportedStandards(ctx context.Context) ([]Standard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return []Standard{{Name: "ICRC-1", URL: "https://github.com/dfinity/ICRC-1"}}, nil
}

// check must be called with m.mu held.
func (m *Memory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	if m.unavail != nil {
		return m.unavail
	}
	return nil
}
