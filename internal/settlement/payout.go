package settlement

import (
	"errors"
	"fmt"
	"sort"

	"contest-lifecycle/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformedPayoutTable = errors.New("malformed payout table")
	ErrMalformedSnapshot    = errors.New("malformed standings snapshot")
	ErrNoSnapshot           = errors.New("no standings snapshot for contest")
)

var hundred = decimal.NewFromInt(100)

// Payout is the computed result for one entrant before it is persisted
type Payout struct {
	EntrantID string
	Rank      int
	Score     decimal.Decimal
	Amount    decimal.Decimal
}

// ValidatePayoutTable checks that tiers are ordered, non-overlapping, carry
// exactly one of amount/percentage, and that percentages never pay out more
// than the whole pool.
func ValidatePayoutTable(table models.PayoutTable) error {
	if len(table) == 0 {
		return fmt.Errorf("%w: no tiers", ErrMalformedPayoutTable)
	}

	totalPct := decimal.Zero
	prevMax := 0
	for i, tier := range table {
		if tier.MinRank < 1 || tier.MaxRank < tier.MinRank {
			return fmt.Errorf("%w: tier %d has invalid rank range %d-%d",
				ErrMalformedPayoutTable, i, tier.MinRank, tier.MaxRank)
		}
		if tier.MinRank <= prevMax {
			return fmt.Errorf("%w: tier %d overlaps or is out of order", ErrMalformedPayoutTable, i)
		}
		prevMax = tier.MaxRank

		switch {
		case tier.Amount != nil && tier.Percentage != nil:
			return fmt.Errorf("%w: tier %d sets both amount and percentage", ErrMalformedPayoutTable, i)
		case tier.Amount == nil && tier.Percentage == nil:
			return fmt.Errorf("%w: tier %d sets neither amount nor percentage", ErrMalformedPayoutTable, i)
		case tier.Amount != nil:
			if tier.Amount.IsNegative() {
				return fmt.Errorf("%w: tier %d has negative amount", ErrMalformedPayoutTable, i)
			}
		default:
			if tier.Percentage.IsNegative() {
				return fmt.Errorf("%w: tier %d has negative percentage", ErrMalformedPayoutTable, i)
			}
			width := decimal.NewFromInt(int64(tier.MaxRank - tier.MinRank + 1))
			totalPct = totalPct.Add(tier.Percentage.Mul(width))
		}
	}

	if totalPct.GreaterThan(hundred) {
		return fmt.Errorf("%w: percentages total %s%% of pool", ErrMalformedPayoutTable, totalPct.String())
	}
	return nil
}

// positionValue is the unrounded amount paid to a single finishing position.
func positionValue(table models.PayoutTable, position int, pool decimal.Decimal) decimal.Decimal {
	for _, tier := range table {
		if position < tier.MinRank || position > tier.MaxRank {
			continue
		}
		if tier.Amount != nil {
			return *tier.Amount
		}
		return pool.Mul(*tier.Percentage).Div(hundred)
	}
	return decimal.Zero
}

// ComputePayouts ranks entries by score descending and assigns each entrant
// an amount from the payout table.
//
// Tied entrants share the best rank of their block (1,1,1,4). The values of
// every position the block occupies are summed, truncated to cents and split
// evenly; leftover cents go one each to the tied entrants in ascending
// entrant id order. The result is ordered by rank, then entrant id.
func ComputePayouts(entryFee decimal.Decimal, table models.PayoutTable, entries models.StandingsEntries) ([]Payout, error) {
	if err := ValidatePayoutTable(table); err != nil {
		return nil, err
	}
	if entryFee.IsNegative() {
		return nil, fmt.Errorf("%w: negative entry fee", ErrMalformedPayoutTable)
	}
	if err := validateEntries(entries); err != nil {
		return nil, err
	}

	ranked := make(models.StandingsEntries, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].Score.Cmp(ranked[j].Score); c != 0 {
			return c > 0
		}
		return ranked[i].EntrantID < ranked[j].EntrantID
	})

	pool := entryFee.Mul(decimal.NewFromInt(int64(len(ranked))))
	payouts := make([]Payout, 0, len(ranked))

	for start := 0; start < len(ranked); {
		end := start + 1
		for end < len(ranked) && ranked[end].Score.Equal(ranked[start].Score) {
			end++
		}

		blockTotal := decimal.Zero
		for pos := start + 1; pos <= end; pos++ {
			blockTotal = blockTotal.Add(positionValue(table, pos, pool))
		}

		cents := blockTotal.Shift(2).Truncate(0).IntPart()
		n := int64(end - start)
		share, remainder := cents/n, cents%n

		for i := start; i < end; i++ {
			amount := share
			if int64(i-start) < remainder {
				amount++
			}
			payouts = append(payouts, Payout{
				EntrantID: ranked[i].EntrantID,
				Rank:      start + 1,
				Score:     ranked[i].Score,
				Amount:    decimal.New(amount, -2),
			})
		}
		start = end
	}

	return payouts, nil
}

func validateEntries(entries models.StandingsEntries) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entrants", ErrMalformedSnapshot)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.EntrantID == "" {
			return fmt.Errorf("%w: empty entrant id", ErrMalformedSnapshot)
		}
		if _, dup := seen[e.EntrantID]; dup {
			return fmt.Errorf("%w: duplicate entrant %q", ErrMalformedSnapshot, e.EntrantID)
		}
		seen[e.EntrantID] = struct{}{}
	}
	return nil
}
