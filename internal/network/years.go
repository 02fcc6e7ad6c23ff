package network

// ReportYears returns start, start+step, ... up to end, keeping only years
// no later than the last construction year, with end always included.
// A zero last year keeps every year.
func ReportYears(start, end, step, last int) []int {
	if step <= 0 {
		step = 1
	}
	var out []int
	for y := start; y <= end; y += step {
		if last > 0 && y > last {
			break
		}
		out = append(out, y)
	}
	if len(out) == 0 || out[len(out)-1] != end {
		out = append(out, end)
	}
	return out
}
