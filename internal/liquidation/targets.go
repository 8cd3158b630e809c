package liquidation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// TargetFile is the on-disk shape both radiant_bot.py and
// lodestar_bot.py hot-reload every block: a JSON object with explicit
// tiers, or (for backward compatibility) a bare address array treated
// as Tier 1.
type TargetFile struct {
	Tier1Danger    []string `json:"tier_1_danger"`
	Tier2Watchlist []string `json:"tier_2_watchlist"`
}

// LoadTargetFile reads and parses path into checksummed address lists.
// A bare JSON array is treated as Tier1Danger with an empty Tier 2,
// matching load_targets_async's isinstance(data, list) branch.
func LoadTargetFile(path string) (t1, t2 []common.Address, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("liquidation: read target file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("liquidation: target file %s is empty", path)
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return toAddresses(asList), nil, nil
	}

	var asFile TargetFile
	if err := json.Unmarshal(raw, &asFile); err != nil {
		return nil, nil, fmt.Errorf("liquidation: parse target file %s: %w", path, err)
	}
	return toAddresses(asFile.Tier1Danger), toAddresses(asFile.Tier2Watchlist), nil
}

func toAddresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if !common.IsHexAddress(s) {
			continue
		}
		out = append(out, common.HexToAddress(s))
	}
	return out
}

// SeedFallback seeds a Hunter's Tier 2 watchlist with whale addresses
// when a target file load produces two empty tiers, matching both
// bots' "seed Tier 2 with hardcoded whale fallbacks" recovery path —
// a liquidation bot that starts with nothing to watch never fires.
func SeedFallback(h *Hunter, whales []common.Address) {
	if len(h.Tier1()) > 0 || len(h.Tier2()) > 0 {
		return
	}
	if len(whales) == 0 {
		return
	}
	h.LoadTargets(nil, whales)
}
