package utils

import (
	"math"

	"github.com/google/uuid"
)

// GenerateSessionID returns a new opaque session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
