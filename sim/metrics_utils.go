package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"golang.org/x/exp/slices"
)

type IntOrFloat64 interface {
	int | int64 | float64
}

// CalculatePercentile returns the p-th percentile (0-100) of data, linearly
// interpolated between the two closest ranks. data need not be sorted.
// Returns 0 for empty input.
func CalculatePercentile[T IntOrFloat64](data []T, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)

	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))
	if upperIdx >= n {
		return float64(sorted[n-1])
	}
	if lowerIdx == upperIdx {
		return float64(sorted[lowerIdx])
	}
	lowerVal, upperVal := float64(sorted[lowerIdx]), float64(sorted[upperIdx])
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}

// CalculateMean returns the mean of data, or 0 for empty input.
func CalculateMean[T IntOrFloat64](numbers []T) float64 {
	if len(numbers) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, number := range numbers {
		sum += float64(number)
	}
	return sum / float64(len(numbers))
}

// SaveResults writes the run summary as indented JSON.
func (m *Metrics) SaveResults(path string) error {
	data, err := json.MarshalIndent(m.Summary(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results to %s: %w", path, err)
	}
	return nil
}
