package rewards

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ggonzalez94/distr-cli/internal/units"
)

// DecCoin is an on-chain reward amount in base units with its display precision.
type DecCoin struct {
	Denom     string
	Amount    *big.Int
	Precision uint8
}

// Display shifts Amount by Precision decimal places.
func (c DecCoin) Display() string {
	return units.FormatUnits(c.Amount, int(c.Precision))
}

// ParseDisplay rebuilds a DecCoin from its display form.
func ParseDisplay(denom, display string, precision uint8) (DecCoin, error) {
	amount, err := units.ParseUnits(display, int(precision))
	if err != nil {
		return DecCoin{}, fmt.Errorf("parse %s amount: %w", denom, err)
	}
	return DecCoin{Denom: denom, Amount: amount, Precision: precision}, nil
}

type decCoinJSON struct {
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
	Precision uint8  `json:"precision"`
	Display   string `json:"display"`
}

func (c DecCoin) MarshalJSON() ([]byte, error) {
	amount := "0"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return json.Marshal(decCoinJSON{Denom: c.Denom, Amount: amount, Precision: c.Precision, Display: c.Display()})
}

func (c *DecCoin) UnmarshalJSON(buf []byte) error {
	var raw decCoinJSON
	if err := json.Unmarshal(buf, &raw); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", raw.Amount)
	}
	*c = DecCoin{Denom: raw.Denom, Amount: amount, Precision: raw.Precision}
	return nil
}

type DelegatorReward struct {
	ValidatorAddress string    `json:"validator_address"`
	Reward           []DecCoin `json:"reward"`
}

type AllRewards struct {
	Rewards []DelegatorReward `json:"rewards"`
	Total   []DecCoin         `json:"total"`
}

type ValidatorRewards struct {
	Validator string    `json:"validator"`
	Rewards   []DecCoin `json:"rewards"`
}

type Kind string

const (
	KindAllRewards       Kind = "all_rewards"
	KindValidatorRewards Kind = "validator_rewards"
)

// Result is the outcome of a reward query. Exactly one of All or Validator is
// set, matching Kind.
type Result struct {
	Kind      Kind              `json:"kind"`
	Delegator string            `json:"delegator"`
	ChainID   int64             `json:"chain_id"`
	All       *AllRewards       `json:"all,omitempty"`
	Validator *ValidatorRewards `json:"validator,omitempty"`
	FetchedAt string            `json:"fetched_at"`
}

// ValidatorCount is the number of validators listed by an all-rewards result.
func (r Result) ValidatorCount() int {
	if r.All == nil {
		return 0
	}
	return len(r.All.Rewards)
}

// abi decode targets; field order must match the ABI components.
type abiDecCoin struct {
	Denom     string
	Amount    *big.Int
	Precision uint8
}

type abiDelegatorReward struct {
	ValidatorAddress string
	Reward           []abiDecCoin
}

type totalRewardsOutput struct {
	Rewards []abiDelegatorReward
	Total   []abiDecCoin
}

type validatorRewardsOutput struct {
	Rewards []abiDecCoin
}

func toDecCoins(in []abiDecCoin) []DecCoin {
	out := make([]DecCoin, 0, len(in))
	for _, c := range in {
		amount := c.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		out = append(out, DecCoin{Denom: c.Denom, Amount: new(big.Int).Set(amount), Precision: c.Precision})
	}
	return out
}
