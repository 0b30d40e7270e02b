package decmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArithmeticAvoidsFloatDrift(t *testing.T) {
	// 经典浮点陷阱：0.1+0.2
	assert.Equal(t, 0.3, Add(0.1, 0.2))
	assert.Equal(t, 0.1, Sub(0.3, 0.2))
	assert.Equal(t, 0.02, Mul(0.1, 0.2))
}

func TestComparisons(t *testing.T) {
	assert.True(t, LT(1.0, 1.0000001))
	assert.False(t, LT(1.0, 1.0))
	assert.True(t, LTE(1.0, 1.0))
	assert.True(t, GT(2.0, 1.9))
	assert.True(t, GTE(2.0, 2.0))
	assert.Equal(t, 0, Compare(0.3, Add(0.1, 0.2)))
}

func TestEqualWithin(t *testing.T) {
	assert.True(t, EqualWithin(1.0, 1.0000001, 1e-3))
	assert.False(t, EqualWithin(1.0, 1.1, 1e-3))
}
