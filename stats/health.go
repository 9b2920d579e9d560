package stats

// SystemHealth samples the host's adjusted load average and swap usage
// percentage in one call. Errors from either probe are treated as "metric
// unavailable" and reported as zero, which CalculateDynMax already
// interprets as "do not throttle".
func SystemHealth() (load float64, swapPct int) {
	load, _ = getAdjustedLoad()
	swapPct, _ = getSwapUsage()
	return load, swapPct
}
