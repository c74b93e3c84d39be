package harvest

import "mapsharvest-engine/internal/config"

// Tolerance is how many consecutive stalls are allowed at the given result
// count. Tiers must be sorted by Below; counts past every tier get def.
func Tolerance(tiers []config.Tier, def int, count int) int {
	for _, t := range tiers {
		if count < t.Below {
			return t.Tolerance
		}
	}
	return def
}
