// Package interp provides linear interpolation along sampled coordinate axes.
//
// An [Axis] wraps a strictly monotonic sequence of coordinates (for example
// the velocity of every spectral channel) and converts fractional channel
// indices to coordinates and back:
//
//	ax, err := interp.NewAxis(velocity)
//	v, err := ax.At(12.5)     // coordinate halfway between channels 12 and 13
//	i, err := ax.Index(v)     // 12.5
//
// Both directions reject arguments outside the sampled range instead of
// extrapolating.
package interp
