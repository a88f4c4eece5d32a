// Package safe provides overflow-checked numeric conversions and arithmetic.
//
// Balance amounts cross the service boundary as unsigned integers but are
// applied to accounts as signed deltas. The helpers here make every widening
// conversion and signed addition fallible instead of relying on wraparound.
package safe
