package search

import "github.com/MasterVVK/neuro-expert/core"

// SelectStrategy picks the retrieval method for a query.
//
// With smart search enabled, queries shorter than the hybrid threshold
// use hybrid retrieval: short queries carry too little context for the
// embedding alone, so lexical matching compensates. A query exactly at
// the threshold is long enough for pure vector retrieval. Query length
// is counted in runes, not bytes.
//
// Reranking is orthogonal: it never changes the selected method.
func SelectStrategy(query string, cfg core.SearchConfig) core.Method {
	if cfg.UseSmartSearch && core.QueryLength(query) < cfg.HybridThreshold {
		return core.MethodHybrid
	}
	return core.MethodVector
}
