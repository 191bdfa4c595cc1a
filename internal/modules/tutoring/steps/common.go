package steps

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

func llmTimer(log *logger.Logger, name string, fields map[string]any) func(error) {
	start := time.Now()
	return func(err error) {
		if log == nil {
			return
		}
		kv := make([]any, 0, 4+len(fields)*2+2)
		kv = append(kv, "llm_call", name, "elapsed_ms", time.Since(start).Milliseconds())
		for k, v := range fields {
			kv = append(kv, k, v)
		}
		if err != nil {
			kv = append(kv, "error", err.Error())
			log.Warn("llm call finished", kv...)
			return
		}
		log.Info("llm call finished", kv...)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// cleanStrings trims, drops blanks and removes case-insensitive duplicates.
func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
