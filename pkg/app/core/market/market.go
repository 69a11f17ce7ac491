package market

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// Status is the trading status of an instrument pair.
type Status int8

const (
	Active Status = iota // accepting orders and matching
	Paused               // orders rejected, matching halted
	Closed               // terminal
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	ErrNotActive      = errors.New("market not active")
	ErrZeroPrice      = errors.New("price must be positive")
	ErrZeroAmount     = errors.New("amount must be positive")
	ErrTickSize       = errors.New("price not a multiple of tick size")
	ErrLotSize        = errors.New("amount not a multiple of lot size")
	ErrBelowMinimum   = errors.New("amount below minimum order size")
	ErrAboveMaximum   = errors.New("amount exceeds maximum order size")
	ErrInvalidDecimal = errors.New("invalid decimal value")
)

// Market is a spot instrument pair. Prices are integer ticks of quote asset,
// amounts are integer lots of base asset; both travel through the book as
// uint64 and the mints travel as opaque 32-byte tokens.
type Market struct {
	Symbol     string // "SOL-USDC"
	BaseAsset  string
	QuoteAsset string
	BaseMint   orderbook.Identity
	QuoteMint  orderbook.Identity
	Status     Status

	// PriceDecimals: 1 tick = 10^-PriceDecimals quote units.
	PriceDecimals int32
	// SizeDecimals: 1 lot = 10^-SizeDecimals base units.
	SizeDecimals int32

	TickSize     uint64 // minimum price increment in ticks
	LotSize      uint64 // minimum amount increment in lots
	MinOrderSize uint64
	MaxOrderSize uint64
}

// Params separates static configuration from the runtime Market.
type Params struct {
	PriceDecimals int32
	SizeDecimals  int32
	TickSize      uint64
	LotSize       uint64
	MinOrderSize  uint64
	MaxOrderSize  uint64
}

// DefaultParams: 6-decimal quote ticks, 9-decimal base lots.
var DefaultParams = Params{
	PriceDecimals: 6,
	SizeDecimals:  9,
	TickSize:      1,
	LotSize:       1,
	MinOrderSize:  1,
	MaxOrderSize:  1 << 48,
}

// MintFor derives a deterministic 32-byte mint token for an asset symbol.
// Real deployments pass chain mint addresses through NewMarket instead.
func MintFor(asset string) orderbook.Identity {
	return orderbook.Identity(sha256.Sum256([]byte("mint:" + asset)))
}

func NewMarket(symbol, baseAsset, quoteAsset string, baseMint, quoteMint orderbook.Identity, p Params) (*Market, error) {
	m := &Market{
		Symbol:        symbol,
		BaseAsset:     baseAsset,
		QuoteAsset:    quoteAsset,
		BaseMint:      baseMint,
		QuoteMint:     quoteMint,
		Status:        Active,
		PriceDecimals: p.PriceDecimals,
		SizeDecimals:  p.SizeDecimals,
		TickSize:      p.TickSize,
		LotSize:       p.LotSize,
		MinOrderSize:  p.MinOrderSize,
		MaxOrderSize:  p.MaxOrderSize,
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	return m, nil
}

// NewMarketWithDefaults uses DefaultParams and mints derived from the asset names.
func NewMarketWithDefaults(symbol, baseAsset, quoteAsset string) (*Market, error) {
	return NewMarket(symbol, baseAsset, quoteAsset, MintFor(baseAsset), MintFor(quoteAsset), DefaultParams)
}

func (m *Market) Validate() error {
	if m.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		return fmt.Errorf("base and quote assets must be specified")
	}
	if m.BaseMint.IsZero() || m.QuoteMint.IsZero() {
		return fmt.Errorf("base and quote mints must be set")
	}
	if m.BaseMint == m.QuoteMint {
		return fmt.Errorf("base and quote mints must differ")
	}
	if m.TickSize == 0 {
		return fmt.Errorf("tick size must be positive")
	}
	if m.LotSize == 0 {
		return fmt.Errorf("lot size must be positive")
	}
	if m.MinOrderSize == 0 || m.MaxOrderSize == 0 {
		return fmt.Errorf("order size limits must be positive")
	}
	if m.MinOrderSize > m.MaxOrderSize {
		return fmt.Errorf("min order size cannot exceed max order size")
	}
	if m.PriceDecimals < 0 || m.SizeDecimals < 0 {
		return fmt.Errorf("decimals cannot be negative")
	}
	return nil
}

// ValidateOrder checks a decrypted price/amount pair against market rules.
// It runs at the boundary, before the order reaches the book.
func (m *Market) ValidateOrder(price, amount uint64) error {
	if m.Status != Active {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, m.Symbol, m.Status)
	}
	if price == 0 {
		return ErrZeroPrice
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if price%m.TickSize != 0 {
		return fmt.Errorf("%w: %d (tick %d)", ErrTickSize, price, m.TickSize)
	}
	if amount%m.LotSize != 0 {
		return fmt.Errorf("%w: %d (lot %d)", ErrLotSize, amount, m.LotSize)
	}
	if amount < m.MinOrderSize {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amount, m.MinOrderSize)
	}
	if amount > m.MaxOrderSize {
		return fmt.Errorf("%w: %d > %d", ErrAboveMaximum, amount, m.MaxOrderSize)
	}
	return nil
}

// ToTicks converts a human price ("101.25") into integer ticks.
func (m *Market) ToTicks(price string) (uint64, error) {
	return toUnits(price, m.PriceDecimals)
}

// ToLots converts a human amount ("0.5") into integer lots.
func (m *Market) ToLots(amount string) (uint64, error) {
	return toUnits(amount, m.SizeDecimals)
}

// FormatPrice renders ticks back into a human price.
func (m *Market) FormatPrice(ticks uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(ticks), -m.PriceDecimals).String()
}

func (m *Market) FormatAmount(lots uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lots), -m.SizeDecimals).String()
}

func toUnits(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidDecimal, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDecimal, s)
	}
	units := d.Shift(decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidDecimal, s, decimals)
	}
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDecimal, s)
	}
	return bi.Uint64(), nil
}
