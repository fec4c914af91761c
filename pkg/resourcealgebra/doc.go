// Package resourcealgebra implements typed add/sub/compare arithmetic
// over scalar and per-device vector Resource values.
//
// Scalar arithmetic is carried out in fixed-point thousandths
// (ToFixed/FromFixed) to avoid floating-point drift across repeated
// allocate/release cycles; equality at the Resources level uses an
// epsilon of 1e-8. Vector arithmetic merges or subtracts per-device
// arrays; ResourcesLessEqual is asymmetric over missing keys: only
// the left operand's resource names are considered, so a request
// naming a subset of a unit's resources can still be satisfied by it.
package resourcealgebra
