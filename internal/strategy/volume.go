package strategy

import "github.com/shopspring/decimal"

// VolumeHistory holds the window volumes of all prior closed candles of one symbol.
// The volume of the candle under evaluation is appended only after it has been compared.
type VolumeHistory struct {
	volumes []decimal.Decimal
	min     decimal.Decimal
}

// Append records a closed window volume.
func (h *VolumeHistory) Append(v decimal.Decimal) {
	if len(h.volumes) == 0 || v.LessThan(h.min) {
		h.min = v
	}
	h.volumes = append(h.volumes, v)
}

// Len returns the number of recorded windows.
func (h *VolumeHistory) Len() int { return len(h.volumes) }

// Min returns the smallest recorded volume; ok is false when the history is empty.
func (h *VolumeHistory) Min() (decimal.Decimal, bool) {
	if len(h.volumes) == 0 {
		return decimal.Zero, false
	}
	return h.min, true
}

// IsLowest reports whether v is strictly below every recorded volume.
// An empty history has no minimum, so nothing can be the lowest.
func (h *VolumeHistory) IsLowest(v decimal.Decimal) bool {
	m, ok := h.Min()
	return ok && v.LessThan(m)
}

// Values returns a copy of the recorded volumes in order.
func (h *VolumeHistory) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(h.volumes))
	copy(out, h.volumes)
	return out
}
