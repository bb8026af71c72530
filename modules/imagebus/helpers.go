package imagebus

// CalculateOverwriteRate returns the share of results a latest receiver
// never read (0.0 to 1.0). Returns 0.0 for unknown subscribers or when
// nothing was delivered.
func CalculateOverwriteRate(stats BusStats, subscriberID string) float64 {
	sub, exists := stats.Subscribers[subscriberID]
	if !exists || sub.Delivered == 0 {
		return 0.0
	}
	return float64(sub.Overwritten) / float64(sub.Delivered)
}
