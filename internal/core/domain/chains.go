package domain

import "fmt"

const (
	ChainIDEthereum    uint64 = 1
	ChainIDBase        uint64 = 8453
	ChainIDBaseSepolia uint64 = 84532
)

// ChainIDToName maps known chain ids to a readable name for logs.
var ChainIDToName = map[uint64]string{
	ChainIDEthereum:    "ethereum",
	ChainIDBase:        "base",
	ChainIDBaseSepolia: "base-sepolia",
}

// ChainName returns a readable chain name, falling back to the numeric id.
func ChainName(id uint64) string {
	if name, ok := ChainIDToName[id]; ok {
		return name
	}
	return fmt.Sprintf("chain-%d", id)
}

// ChainIDHex formats a chain id as a JSON-RPC quantity.
func ChainIDHex(id uint64) string {
	return fmt.Sprintf("0x%x", id)
}
