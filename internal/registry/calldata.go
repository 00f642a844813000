package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func pack(method string, args ...any) ([]byte, error) {
	data, err := DistributionABI().Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func PackDelegationTotalRewards(delegator common.Address) ([]byte, error) {
	return pack(MethodDelegationTotalRewards, delegator)
}

func PackDelegationRewards(delegator common.Address, validator string) ([]byte, error) {
	return pack(MethodDelegationRewards, delegator, validator)
}

// PackClaimRewards encodes claimRewards. maxRetrieve bounds how many
// delegations are withdrawn in one call.
func PackClaimRewards(delegator common.Address, maxRetrieve uint32) ([]byte, error) {
	return pack(MethodClaimRewards, delegator, maxRetrieve)
}

func PackWithdrawDelegatorRewards(delegator common.Address, validator string) ([]byte, error) {
	return pack(MethodWithdrawDelegatorRewards, delegator, validator)
}
