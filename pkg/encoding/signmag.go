// Package encoding implements the sign-magnitude representation used by
// STS-series servos to carry signed values in unsigned registers.
package encoding

import (
	"errors"
	"fmt"
)

// ErrValueOutOfRange is returned when a magnitude does not fit below the
// sign bit. Encoding such a value would silently corrupt the sign bit.
var ErrValueOutOfRange = errors.New("value out of range")

// EncodeSignMagnitude packs a signed value into an unsigned register
// where bit signBit carries the sign and the bits below it the absolute
// magnitude.
//
//	EncodeSignMagnitude(-100, 15) == 0x8064
//	EncodeSignMagnitude(100, 15) == 0x0064
func EncodeSignMagnitude(value int, signBit uint) (uint32, error) {
	maxMagnitude := 1<<signBit - 1
	magnitude := value
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > maxMagnitude {
		return 0, fmt.Errorf("%w: |%d| does not fit in %d magnitude bits (max %d)",
			ErrValueOutOfRange, value, signBit, maxMagnitude)
	}
	if value < 0 {
		return uint32(magnitude) | 1<<signBit, nil
	}
	return uint32(magnitude), nil
}

// DecodeSignMagnitude is the exact inverse of EncodeSignMagnitude.
func DecodeSignMagnitude(raw uint32, signBit uint) int {
	magnitude := int(raw & (1<<signBit - 1))
	if raw&(1<<signBit) != 0 {
		return -magnitude
	}
	return magnitude
}
