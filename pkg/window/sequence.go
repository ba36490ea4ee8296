package window

// MakeWindows slides a window of nSteps rows over features with stride 1.
// Window i covers rows [i, i+nSteps) and is paired with target[i+nSteps].
// Windows are sub-slices of features and share its backing rows.
func MakeWindows(features [][]float64, target []float64, nSteps int) ([][][]float64, []float64) {
	n := len(features)
	if len(target) < n {
		n = len(target)
	}
	if nSteps <= 0 || nSteps >= n {
		return nil, nil
	}

	count := n - nSteps
	windows := make([][][]float64, count)
	targets := make([]float64, count)
	for i := 0; i < count; i++ {
		windows[i] = features[i : i+nSteps : i+nSteps]
		targets[i] = target[i+nSteps]
	}
	return windows, targets
}

// Batches splits [0, n) into consecutive [start, end) ranges of at most size
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
