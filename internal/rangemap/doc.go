// Package rangemap translates values between declared numeric ranges.
//
// Every translation is an affine transform followed by an inclusive bounds
// check on the destination. Values that do not fit are reported as
// RangeError{Kind: Unrepresentable}; they are never clamped unless the caller
// builds a Chain with WithClamp.
//
// A connection between two ports maps through up to three stages:
//
//	source physical -> source electrical   (StagePhysicalToElectrical)
//	source electrical -> dest electrical   (StageConnection)
//	dest electrical -> dest physical       (StageElectricalToPhysical)
//
// Each stage is checked on its own and errors carry the stage tag.
package rangemap
