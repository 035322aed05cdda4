// Package median provides a one-dimensional running median filter.
//
// The filter uses half-sample symmetric ("reflect") boundary extension
//
//	d c b a | a b c d | d c b a
//
// and, for a window of size s, reports the element of sorted rank s/2. For
// odd sizes this is the ordinary median; for even sizes it is the upper of the
// two middle values rather than their mean, so the output always consists of
// input samples.
//
// The window for output sample i covers input positions
// [i - s/2, i - s/2 + s - 1].
package median
