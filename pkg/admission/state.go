package admission

// SaturationThreshold is the utilization at or above which the controller
// reports itself as saturated.
const SaturationThreshold = 0.95

// State is a point-in-time view of the admission controller.
type State struct {
	// Capacity is the total number of permits.
	Capacity int64 `json:"capacity"`

	// InUse is the number of permits currently held by connections.
	InUse int64 `json:"in_use"`

	// Waiting is the number of connections suspended in Acquire.
	Waiting int64 `json:"waiting"`
}

// Available returns the number of free permits.
func (s State) Available() int64 {
	if free := s.Capacity - s.InUse; free > 0 {
		return free
	}
	return 0
}

// Utilization returns InUse as a fraction of Capacity.
func (s State) Utilization() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.InUse) / float64(s.Capacity)
}

// Saturated reports whether new connections are likely to wait for a permit.
func (s State) Saturated() bool {
	return s.Waiting > 0 || s.Utilization() >= SaturationThreshold
}
