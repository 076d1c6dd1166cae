package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract surface consumed by the orchestrator. Reads are simulated before
// any write so reverts surface without spending gas.
const registryABIJson = `[
	{"type":"function","name":"registerAgent","stateMutability":"nonpayable",
	 "inputs":[{"name":"agentUri","type":"string"}],
	 "outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"addValidation","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"hash","type":"bytes32"},{"name":"passed","type":"bool"}],
	 "outputs":[]},
	{"type":"function","name":"updateReputation","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"score","type":"uint256"}],
	 "outputs":[]}
]`

const splitterABIJson = `[
	{"type":"function","name":"getClaimable","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"claimETH","stateMutability":"nonpayable",
	 "inputs":[],"outputs":[]},
	{"type":"function","name":"getDistributionCount","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc3009ABIJson = `[
	{"type":"function","name":"transferWithAuthorization","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},{"name":"validAfter","type":"uint256"},
		{"name":"validBefore","type":"uint256"},{"name":"nonce","type":"bytes32"},
		{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
	 "outputs":[]}
]`

var (
	registryABI = mustParseABI(registryABIJson)
	splitterABI = mustParseABI(splitterABIJson)
	erc3009ABI  = mustParseABI(erc3009ABIJson)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
