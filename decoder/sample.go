package decoder

// SampleOptions selects the subsample rule. The zero value is quality
// priority with power-of-two factors.
type SampleOptions struct {
	// SpeedPriority keeps halving while either side is still above the
	// target (or takes the larger ratio when Exact is set).
	SpeedPriority bool
	// Exact uses the integer source/target ratio instead of powers of two.
	Exact bool
}

// ComputeSampleSize returns the factor by which a srcW x srcH image is
// divided to approach a tgtW x tgtH target. The result is at least 1.
//
// With the default options the factor is the smallest power of two s for
// which (srcW/2)/s <= tgtW or (srcH/2)/s <= tgtH.
func ComputeSampleSize(srcW, srcH, tgtW, tgtH int, o SampleOptions) int {
	if srcW <= 0 || srcH <= 0 || tgtW <= 0 || tgtH <= 0 {
		return 1
	}

	s := 1
	halfW, halfH := srcW/2, srcH/2
	switch {
	case !o.SpeedPriority && !o.Exact:
		for halfW/s > tgtW && halfH/s > tgtH {
			s *= 2
		}
	case !o.SpeedPriority && o.Exact:
		s = min(srcW/tgtW, srcH/tgtH)
	case o.SpeedPriority && !o.Exact:
		for halfW/s > tgtW || halfH/s > tgtH {
			s *= 2
		}
	default:
		s = max(srcW/tgtW, srcH/tgtH)
	}

	if s < 1 {
		s = 1
	}
	return s
}
