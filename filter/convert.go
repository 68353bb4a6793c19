package filter

import (
	"strconv"
	"strings"
)

// AsInt parses the tag value as an int, 0 on error
func AsInt(v string) int64 {
	val, _ := strconv.ParseInt(v, 0, 64)
	return val
}

// AsFloat parses the tag value as a float64, 0.0 on error
func AsFloat(v string) float64 {
	val, _ := strconv.ParseFloat(v, 64)
	return val
}

// AsIntSlice parses the tag value as a comma-separated slice of int64s (0 in every unparsable item)
func AsIntSlice(v string) []int64 {
	parts := strings.Split(v, ",")
	res := make([]int64, len(parts))
	for i, part := range parts {
		val, _ := strconv.ParseInt(part, 0, 64)
		res[i] = val
	}
	return res
}

// AsFloatSlice parses the tag value as a comma-separated slice of float64s (0.0 in every unparsable item)
func AsFloatSlice(v string) []float64 {
	parts := strings.Split(v, ",")
	res := make([]float64, len(parts))
	for i, part := range parts {
		val, _ := strconv.ParseFloat(part, 64)
		res[i] = val
	}
	return res
}

// AsStringSlice parses the tag value as a comma-separated slice of strings
func AsStringSlice(v string) []string {
	return strings.Split(v, ",")
}
