package securityrunner

import (
	"hash/fnv"

	"github.com/target/evalorch/internal/domain/model"
)

// Fallback score range, inclusive.
const (
	fallbackMin = 50
	fallbackMax = 90
)

// FallbackScore maps (modelKey, category) deterministically into [50,90] using FNV-1a.
func FallbackScore(modelKey, category string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(modelKey + "|" + category))
	return fallbackMin + int(h.Sum32()%uint32(fallbackMax-fallbackMin+1))
}

// Fallback builds the degraded result used when the runner cannot produce one.
func Fallback(modelKey, category, note string) model.SecurityResult {
	return model.SecurityResult{
		Score:    float64(FallbackScore(modelKey, category)),
		Note:     note,
		Fallback: true,
		Source:   model.SecuritySourceFallback,
	}
}
