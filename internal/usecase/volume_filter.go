package usecase

import "github.com/vitos/crypto_spread_arb/internal/domain"

// FilterByVolume keeps only pairs whose 24h volume clears minVolume on
// both venues individually. The average of the two volumes is filled in
// on the survivors for ranking and display. Order is preserved.
func FilterByVolume(pairs []domain.MatchedPair, minVolume float64) []domain.MatchedPair {
	out := make([]domain.MatchedPair, 0, len(pairs))
	for _, p := range pairs {
		if p.VolumeA < minVolume || p.VolumeB < minVolume {
			continue
		}
		p.AvgVolume = (p.VolumeA + p.VolumeB) / 2
		out = append(out, p)
	}
	return out
}
