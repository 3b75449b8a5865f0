package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthName(t *testing.T) {
	assert.Equal(t, "Enero", MonthName(1))
	assert.Equal(t, "Julio", MonthName(7))
	assert.Equal(t, "Diciembre", MonthName(12))
	assert.Equal(t, "", MonthName(0))
	assert.Equal(t, "", MonthName(13))
}

func TestPeriodsBack(t *testing.T) {
	now := time.Date(2026, time.February, 15, 10, 0, 0, 0, time.UTC)

	periods := PeriodsBack(now, 2)
	require.Len(t, periods, 3)
	assert.Equal(t, Period{Month: 2, Year: 2026}, periods[0])
	assert.Equal(t, Period{Month: 1, Year: 2026}, periods[1])
	assert.Equal(t, Period{Month: 12, Year: 2025}, periods[2])
}

func TestPeriodsBack_NegativeCoercedToCurrent(t *testing.T) {
	now := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)

	periods := PeriodsBack(now, -3)
	require.Len(t, periods, 1)
	assert.Equal(t, Period{Month: 7, Year: 2026}, periods[0])
}

func TestPeriod_Name(t *testing.T) {
	assert.Equal(t, "Julio 2026", Period{Month: 7, Year: 2026}.Name())
	assert.Equal(t, "", Period{Month: 0, Year: 2026}.Name())
}
