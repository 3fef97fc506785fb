// Package rng consolidates all fairness-sensitive randomness behind a
// cryptographically strong source. Winning-number draws, forced-winner
// selection and coin-flip resolution must all come through here.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sort"
)

// Intn returns a uniform random int in [0, n).
func Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("rng: n must be positive, got %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("rng: read randomness: %w", err)
	}
	return int(v.Int64()), nil
}

// Float64 returns a uniform random float64 in [0, 1).
func Float64() (float64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("rng: read randomness: %w", err)
	}
	// 53 random bits scaled into [0, 1).
	bits := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(bits) / math.Exp2(53), nil
}

// CoinFlip returns true or false with equal probability.
func CoinFlip() (bool, error) {
	v, err := Intn(2)
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// DistinctInts draws count distinct values uniformly from [1, max] without
// replacement and returns them sorted ascending.
func DistinctInts(count, max int) ([]int, error) {
	if count <= 0 || max <= 0 || count > max {
		return nil, fmt.Errorf("rng: cannot draw %d distinct values from [1, %d]", count, max)
	}

	available := make([]int, max)
	for i := range available {
		available[i] = i + 1
	}

	picked := make([]int, 0, count)
	for len(picked) < count {
		idx, err := Intn(len(available))
		if err != nil {
			return nil, err
		}
		picked = append(picked, available[idx])
		available[idx] = available[len(available)-1]
		available = available[:len(available)-1]
	}

	sort.Ints(picked)
	return picked, nil
}
