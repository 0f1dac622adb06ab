package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"docqa/internal/domain"
)

// cacheIdentity names the vector space of e so that entries from different
// models, task types or sizes never collide.
func cacheIdentity(e domain.Embedder) string {
	if name := modelName(e); name != "" {
		return e.Name() + "/" + name
	}
	return e.Name()
}

func modelName(e domain.Embedder) string {
	if n, ok := e.(domain.ModelNamer); ok {
		return strings.TrimSpace(n.ModelName())
	}
	return ""
}

func buildCacheKey(modelName, text string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	return "embed:" + modelName + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

// missing returns the positions of texts whose vectors are not yet known.
func missing(out [][]float32) []int {
	var idx []int
	for i, v := range out {
		if v == nil {
			idx = append(idx, i)
		}
	}
	return idx
}
