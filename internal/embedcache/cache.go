package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func buildCacheKey(modelName, taskType, text string) (cacheKey, contentHash, normalizedModel string) {
	normalizedModel = strings.TrimSpace(modelName)
	hash := sha256.Sum256([]byte(text))
	contentHash = hex.EncodeToString(hash[:])
	cacheKey = normalizedModel + ":" + taskType + ":" + contentHash
	return cacheKey, contentHash, normalizedModel
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
