package peaks

// prominence returns the topographic prominence of the peak at index p together with the
// positions of the lowest points on either side (the bases). The search on each side runs
// until the signal rises above the peak or the trace ends.
func prominence(x []float64, p int) (prom float64, leftBase, rightBase int) {
	top := x[p]

	leftMin := top
	leftBase = p
	for i := p; i >= 0 && x[i] <= top; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
			leftBase = i
		}
	}

	rightMin := top
	rightBase = p
	for i := p; i < len(x) && x[i] <= top; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
			rightBase = i
		}
	}

	return top - max(leftMin, rightMin), leftBase, rightBase
}

// widthAtHalfProminence measures the peak width at half its prominence below the top, with
// linear interpolation between samples. The crossing search is bounded by the bases.
func widthAtHalfProminence(x []float64, p int, prom float64, leftBase, rightBase int) float64 {
	height := x[p] - prom*0.5

	i := p
	for leftBase < i && height < x[i] {
		i--
	}
	leftIP := float64(i)
	if x[i] < height {
		leftIP += (height - x[i]) / (x[i+1] - x[i])
	}

	i = p
	for i < rightBase && height < x[i] {
		i++
	}
	rightIP := float64(i)
	if x[i] < height {
		rightIP -= (height - x[i]) / (x[i-1] - x[i])
	}

	return rightIP - leftIP
}
