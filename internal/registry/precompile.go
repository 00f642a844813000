package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DistributionPrecompileAddress is the fixed address of the distribution
// precompile on Cosmos-EVM chains.
var DistributionPrecompileAddress = common.HexToAddress("0x0000000000000000000000000000000000000801")

var (
	distributionABIOnce sync.Once
	distributionABI     abi.ABI
)

// DistributionABI returns the parsed distribution precompile ABI.
func DistributionABI() abi.ABI {
	distributionABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(DistributionPrecompileABI))
		if err != nil {
			panic(err)
		}
		distributionABI = parsed
	})
	return distributionABI
}
