package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PayoutTier pays every rank in [MinRank, MaxRank] either a fixed Amount or a
// Percentage of the entry-fee pool. Exactly one of the two is set.
type PayoutTier struct {
	MinRank    int              `json:"min_rank"`
	MaxRank    int              `json:"max_rank"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// PayoutTable is the ordered tier list of a contest instance
type PayoutTable []PayoutTier

func (p PayoutTable) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]PayoutTier(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PayoutTable) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return json.Unmarshal(jsonBytes(value), (*[]PayoutTier)(p))
}
