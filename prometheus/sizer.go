package prometheus

// Sizer reports queue occupancy for the metrics observers.
type Sizer interface {
	GetQueueSize() (uint, error)
	GetPausedSize() (uint, error)
}
