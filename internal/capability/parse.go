package capability

import (
	"strconv"
	"strings"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

// Name is the capability a wallet declares when it appends the data suffix itself.
const Name = "dataSuffix"

// ParseSupport reduces a wallet_getCapabilities answer to a boolean.
//
// Wallets report capabilities keyed by chain id (hex, decimal or the 0x0
// wildcard) or as a flat map, and the capability itself as a boolean, an
// object with supported/enabled fields, or a list of capability names.
func ParseSupport(raw any, chainID uint64) bool {
	switch v := raw.(type) {
	case map[string]any:
		entries := chainEntries(v, chainID)
		if len(entries) == 0 {
			return declared(v)
		}
		// The 0x0 entry applies to every chain alongside the chain's own entry.
		for _, entry := range entries {
			if declared(entry) {
				return true
			}
		}
		return false
	case []any:
		return declared(v)
	}
	return false
}

// chainEntries returns the entries for chainID and for the 0x0 wildcard.
func chainEntries(m map[string]any, chainID uint64) []any {
	keys := []string{
		domain.ChainIDHex(chainID),
		strconv.FormatUint(chainID, 10),
		"0x0",
	}
	var out []any
	for k, v := range m {
		for _, want := range keys {
			if strings.EqualFold(k, want) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// declared reports whether a capability set contains Name in a truthy form.
func declared(set any) bool {
	switch v := set.(type) {
	case map[string]any:
		for k, val := range v {
			if strings.EqualFold(k, Name) {
				return truthy(val)
			}
		}
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case string:
				if strings.EqualFold(it, Name) {
					return true
				}
			case map[string]any:
				if declared(it) {
					return true
				}
			}
		}
	case []string:
		for _, it := range v {
			if strings.EqualFold(it, Name) {
				return true
			}
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true", "supported", "ready", "enabled":
			return true
		}
	case map[string]any:
		for _, field := range []string{"supported", "enabled", "status"} {
			if val, ok := t[field]; ok && truthy(val) {
				return true
			}
		}
	}
	return false
}
