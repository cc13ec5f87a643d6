package settlement

import (
	"bytes"
	"fmt"
	"testing"

	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/testutil"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(payouts []Payout) []string {
	out := make([]string, len(payouts))
	for i, p := range payouts {
		out[i] = p.Amount.StringFixed(2)
	}
	return out
}

func TestComputePayouts_ThreeWayTieForFirst(t *testing.T) {
	entries := testutil.Standings(
		"e01", "95", "e02", "95", "e03", "95", "e04", "80", "e05", "70",
		"e06", "60", "e07", "50", "e08", "40", "e09", "30", "e10", "20",
	)

	payouts, err := ComputePayouts(testutil.Dec("50"), testutil.TopThreeTable(), entries)
	require.NoError(t, err)
	require.Len(t, payouts, 10)

	assert.Equal(t, []string{
		"166.67", "166.67", "166.66",
		"0.00", "0.00", "0.00", "0.00", "0.00", "0.00", "0.00",
	}, amounts(payouts))

	for _, p := range payouts[:3] {
		assert.Equal(t, 1, p.Rank)
	}
	assert.Equal(t, 4, payouts[3].Rank)

	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	assert.True(t, total.Equal(testutil.Dec("500")), "paid %s", total)
}

func TestComputePayouts_OrderIndependent(t *testing.T) {
	a := testutil.Standings("x", "3", "y", "2", "z", "1")
	b := testutil.Standings("z", "1", "x", "3", "y", "2")

	pa, err := ComputePayouts(testutil.Dec("10"), testutil.TopThreeTable(), a)
	require.NoError(t, err)
	pb, err := ComputePayouts(testutil.Dec("10"), testutil.TopThreeTable(), b)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
	assert.Equal(t, []string{"21.00", "6.00", "3.00"}, amounts(pa))
}

func TestComputePayouts_FixedAmountTiers(t *testing.T) {
	table := models.PayoutTable{
		{MinRank: 1, MaxRank: 1, Amount: testutil.DecPtr("100")},
		{MinRank: 2, MaxRank: 3, Amount: testutil.DecPtr("25.555")},
	}
	entries := testutil.Standings("a", "9", "b", "8", "c", "7", "d", "6")

	payouts, err := ComputePayouts(testutil.Dec("0"), table, entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"100.00", "25.55", "25.55", "0.00"}, amounts(payouts))
}

func TestComputePayouts_FewerEntrantsThanTiers(t *testing.T) {
	entries := testutil.Standings("solo", "1")

	payouts, err := ComputePayouts(testutil.Dec("20"), testutil.TopThreeTable(), entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"14.00"}, amounts(payouts))
}

func TestComputePayouts_Golden(t *testing.T) {
	table := models.PayoutTable{
		{MinRank: 1, MaxRank: 1, Percentage: testutil.DecPtr("50")},
		{MinRank: 2, MaxRank: 3, Percentage: testutil.DecPtr("15")},
		{MinRank: 4, MaxRank: 4, Amount: testutil.DecPtr("5")},
	}
	entries := testutil.Standings(
		"frank", "80", "bob", "90.25", "alice", "101.5",
		"erin", "80", "carol", "90.25", "dave", "80",
	)

	payouts, err := ComputePayouts(testutil.Dec("25"), table, entries)
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, p := range payouts {
		fmt.Fprintf(&buf, "%d\t%s\t%s\t%s\n", p.Rank, p.EntrantID, p.Score.String(), p.Amount.StringFixed(2))
	}

	g := goldie.New(t)
	g.Assert(t, "tiered_payouts", buf.Bytes())
}

func TestValidatePayoutTable(t *testing.T) {
	tests := []struct {
		name  string
		table models.PayoutTable
	}{
		{"empty", models.PayoutTable{}},
		{"rank below one", models.PayoutTable{{MinRank: 0, MaxRank: 1, Percentage: testutil.DecPtr("10")}}},
		{"inverted range", models.PayoutTable{{MinRank: 3, MaxRank: 2, Percentage: testutil.DecPtr("10")}}},
		{"overlap", models.PayoutTable{
			{MinRank: 1, MaxRank: 2, Percentage: testutil.DecPtr("10")},
			{MinRank: 2, MaxRank: 3, Percentage: testutil.DecPtr("10")},
		}},
		{"both set", models.PayoutTable{{MinRank: 1, MaxRank: 1, Percentage: testutil.DecPtr("10"), Amount: testutil.DecPtr("1")}}},
		{"neither set", models.PayoutTable{{MinRank: 1, MaxRank: 1}}},
		{"negative amount", models.PayoutTable{{MinRank: 1, MaxRank: 1, Amount: testutil.DecPtr("-1")}}},
		{"over one hundred percent", models.PayoutTable{{MinRank: 1, MaxRank: 3, Percentage: testutil.DecPtr("40")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidatePayoutTable(tt.table), ErrMalformedPayoutTable)
		})
	}

	assert.NoError(t, ValidatePayoutTable(testutil.TopThreeTable()))
}

func TestComputePayouts_RejectsBadEntries(t *testing.T) {
	_, err := ComputePayouts(testutil.Dec("5"), testutil.TopThreeTable(), nil)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	_, err = ComputePayouts(testutil.Dec("5"), testutil.TopThreeTable(), testutil.Standings("a", "1", "a", "2"))
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	_, err = ComputePayouts(testutil.Dec("-5"), testutil.TopThreeTable(), testutil.Standings("a", "1"))
	assert.ErrorIs(t, err, ErrMalformedPayoutTable)
}
