package tjpeg

import (
	"fmt"
	"slices"
)

// ScalingFactor is a rational scale the engine can apply while decoding, producing
// a reduced image directly instead of resizing a full-size one.
type ScalingFactor struct {
	Num, Denom int
}

func (sf ScalingFactor) String() string {
	return fmt.Sprintf("%d/%d", sf.Num, sf.Denom)
}

// Scaled returns dim scaled by sf, rounded up.
func (sf ScalingFactor) Scaled(dim int) int {
	return (dim*sf.Num + sf.Denom - 1) / sf.Denom
}

// compare orders factors by value.
func (sf ScalingFactor) compare(o ScalingFactor) int {
	l, r := sf.Num*o.Denom, o.Num*sf.Denom
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}

	return 0
}

// defaultScalingFactors are the factors the built-in engine decodes with reduced IDCTs.
var defaultScalingFactors = []ScalingFactor{{1, 1}, {1, 2}, {1, 4}, {1, 8}}

// ScalingFactors returns the scaling factors supported by the built-in engine, largest first.
func ScalingFactors() []ScalingFactor {
	return slices.Clone(defaultScalingFactors)
}

// ResolveScale returns the dimensions of the largest image that can be produced from a
// width x height source with one of factors without exceeding desiredWidth x desiredHeight.
// A desired dimension of 0 leaves that axis unconstrained.
func ResolveScale(width, height, desiredWidth, desiredHeight int, factors []ScalingFactor) (int, int, error) {
	sf, err := selectScale(width, height, desiredWidth, desiredHeight, factors)
	if err != nil {
		return 0, 0, err
	}

	return sf.Scaled(width), sf.Scaled(height), nil
}

// selectScale picks the factor for ResolveScale. Both output dimensions come from the one
// factor it returns. Output size never decreases as the factor grows, so the first fit in
// descending order is the largest fit.
func selectScale(width, height, desiredWidth, desiredHeight int, factors []ScalingFactor) (ScalingFactor, error) {
	if width < 1 || height < 1 {
		return ScalingFactor{}, ErrNotInitialized
	}

	if desiredWidth < 0 || desiredHeight < 0 || len(factors) == 0 {
		return ScalingFactor{}, invalidArg("ResolveScale")
	}

	if desiredWidth == 0 {
		desiredWidth = width
	}

	if desiredHeight == 0 {
		desiredHeight = height
	}

	for _, sf := range factors {
		if sf.Num < 1 || sf.Denom < 1 {
			return ScalingFactor{}, fmt.Errorf("%w: scaling factor %s", ErrInvalidArgument, sf)
		}
	}

	ordered := slices.Clone(factors)
	slices.SortStableFunc(ordered, func(a, b ScalingFactor) int {
		return b.compare(a)
	})

	for _, sf := range ordered {
		if sf.Scaled(width) <= desiredWidth && sf.Scaled(height) <= desiredHeight {
			return sf, nil
		}
	}

	return ScalingFactor{}, fmt.Errorf("%w: %dx%d within %dx%d", ErrUnsatisfiableScale, width, height, desiredWidth, desiredHeight)
}
