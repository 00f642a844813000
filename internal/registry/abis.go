package registry

// DistributionPrecompileABI covers the distribution precompile methods used by
// reward queries and claims. Component names and types must match the chain
// exactly; the decoder relies on them.
const DistributionPrecompileABI = `[
	{"name":"delegationTotalRewards","type":"function","stateMutability":"view","inputs":[{"internalType":"address","name":"delegatorAddress","type":"address"}],"outputs":[{"internalType":"struct DelegationDelegatorReward[]","name":"rewards","type":"tuple[]","components":[{"internalType":"string","name":"validatorAddress","type":"string"},{"internalType":"struct DecCoin[]","name":"reward","type":"tuple[]","components":[{"internalType":"string","name":"denom","type":"string"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint8","name":"precision","type":"uint8"}]}]},{"internalType":"struct DecCoin[]","name":"total","type":"tuple[]","components":[{"internalType":"string","name":"denom","type":"string"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint8","name":"precision","type":"uint8"}]}]},
	{"name":"delegationRewards","type":"function","stateMutability":"view","inputs":[{"internalType":"address","name":"delegatorAddress","type":"address"},{"internalType":"string","name":"validatorAddress","type":"string"}],"outputs":[{"internalType":"struct DecCoin[]","name":"rewards","type":"tuple[]","components":[{"internalType":"string","name":"denom","type":"string"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint8","name":"precision","type":"uint8"}]}]},
	{"name":"claimRewards","type":"function","stateMutability":"nonpayable","inputs":[{"internalType":"address","name":"delegatorAddress","type":"address"},{"internalType":"uint32","name":"maxRetrieve","type":"uint32"}],"outputs":[{"internalType":"bool","name":"success","type":"bool"}]},
	{"name":"withdrawDelegatorRewards","type":"function","stateMutability":"nonpayable","inputs":[{"internalType":"address","name":"delegatorAddress","type":"address"},{"internalType":"string","name":"validatorAddress","type":"string"}],"outputs":[{"internalType":"struct Coin[]","name":"amount","type":"tuple[]","components":[{"internalType":"string","name":"denom","type":"string"},{"internalType":"uint256","name":"amount","type":"uint256"}]}]}
]`

const (
	MethodDelegationTotalRewards   = "delegationTotalRewards"
	MethodDelegationRewards        = "delegationRewards"
	MethodClaimRewards             = "claimRewards"
	MethodWithdrawDelegatorRewards = "withdrawDelegatorRewards"
)
