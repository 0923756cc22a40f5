package resolver

import "github.com/VictoriaMetrics/metrics"

var (
	metricCacheHits      = metrics.NewCounter("resolver_cache_hits_total")
	metricCacheMisses    = metrics.NewCounter("resolver_cache_misses_total")
	metricDNSQueries     = metrics.NewCounter("resolver_dns_queries_total")
	metricDedupFollowers = metrics.NewCounter("resolver_dedup_followers_total")
	metricLiteralAnswers = metrics.NewCounter("resolver_literal_answers_total")
)
