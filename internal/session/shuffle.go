package session

import "math/rand/v2"

// Shuffle permutes s in place with a Fisher–Yates pass, so every ordering
// is equally likely.
func Shuffle[T any](r *rand.Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
