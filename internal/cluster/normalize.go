package cluster

import (
	"math"

	"TrafficSentry/internal/model"
)

const numFeatures = 4

// Features reduces each record to (rate, packet count, average size, unique ports).
// Negative or non-finite values are coerced to zero.
func Features(records []model.SourceRecord) [][]float64 {
	rows := make([][]float64, len(records))
	for i, r := range records {
		rows[i] = []float64{
			nonNegative(r.PacketsPerSecond),
			nonNegative(float64(r.PacketCount)),
			nonNegative(r.AveragePacketSize),
			nonNegative(float64(r.UniquePorts)),
		}
	}
	return rows
}

// AllZero reports whether every value of the matrix is exactly zero.
func AllZero(rows [][]float64) bool {
	for _, row := range rows {
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// Normalize standardizes every column to zero mean and unit population standard deviation,
// using statistics of this batch only. A column with zero variance is only centered, so it
// comes out as all zeros.
func Normalize(rows [][]float64) [][]float64 {
	n := len(rows)
	out := make([][]float64, n)
	if n == 0 {
		return out
	}
	width := len(rows[0])

	mean := make([]float64, width)
	for _, row := range rows {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	std := make([]float64, width)
	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(n))
	}

	for i, row := range rows {
		out[i] = make([]float64, width)
		for j, v := range row {
			centered := v - mean[j]
			if std[j] == 0 || math.IsNaN(std[j]) || math.IsInf(std[j], 0) {
				out[i][j] = centered
				continue
			}
			out[i][j] = centered / std[j]
		}
	}
	return out
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
