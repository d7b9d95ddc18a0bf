package habit

import (
	"time"
)

// MetadataKeyInventory is the metadata slot holding inventory sub-state for
// consumable-backed habits (e.g. clean laundry for a workout habit).
const MetadataKeyInventory = "inventory"

// Inventory is the consumable sub-state used by the depletion forecaster.
type Inventory struct {
	Stock         float64        `json:"stock"`
	PerUse        float64        `json:"per_use"`
	ScheduledDays []time.Weekday `json:"scheduled_days"`
}

// InventoryFromMetadata decodes inventory sub-state from a habit's metadata
// map. Values may arrive JSON-decoded (float64 numbers, []any day lists), so
// each field is coerced individually. Returns false when no usable inventory
// is present.
func InventoryFromMetadata(meta map[string]any) (Inventory, bool) {
	raw, ok := meta[MetadataKeyInventory]
	if !ok {
		return Inventory{}, false
	}

	m, ok := raw.(map[string]any)
	if !ok {
		if inv, isInv := raw.(Inventory); isInv {
			return inv, true
		}
		return Inventory{}, false
	}

	inv := Inventory{}
	if v, ok := toFloat(m["stock"]); ok {
		inv.Stock = v
	} else {
		return Inventory{}, false
	}
	if v, ok := toFloat(m["per_use"]); ok {
		inv.PerUse = v
	}
	if inv.PerUse <= 0 {
		inv.PerUse = 1
	}

	switch days := m["scheduled_days"].(type) {
	case []any:
		for _, d := range days {
			if f, ok := toFloat(d); ok {
				inv.ScheduledDays = append(inv.ScheduledDays, time.Weekday(int(f)%7))
			}
		}
	case []time.Weekday:
		inv.ScheduledDays = append(inv.ScheduledDays, days...)
	}

	return inv, true
}

// ToMetadata encodes the inventory back into a metadata-friendly map.
func (i Inventory) ToMetadata() map[string]any {
	days := make([]any, 0, len(i.ScheduledDays))
	for _, d := range i.ScheduledDays {
		days = append(days, float64(d))
	}
	return map[string]any{
		"stock":          i.Stock,
		"per_use":        i.PerUse,
		"scheduled_days": days,
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
