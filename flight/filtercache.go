package flight

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/internal/metrics"
)

// DefaultFilterCacheSize is the number of decoded filters kept by default.
const DefaultFilterCacheSize = 1024

// filterCache keeps decoded filters keyed by their binary encoding.
// Reusing a Filter reuses its computed flatten results across requests.
type filterCache struct {
	cache   *lru.Cache[string, filter.Filter]
	metrics *metrics.Metrics
}

// newFilterCache creates a cache of the given size. A size <= 0 disables caching.
func newFilterCache(size int, m *metrics.Metrics) (*filterCache, error) {
	c := &filterCache{metrics: m}
	if size <= 0 {
		return c, nil
	}
	cache, err := lru.New[string, filter.Filter](size)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// decode returns the filter encoded in data.
func (c *filterCache) decode(data []byte) (filter.Filter, error) {
	if len(data) == 0 {
		return filter.Filter{}, nil
	}
	if c.cache == nil {
		return decodeFilter(data)
	}

	key := string(data)
	if f, ok := c.cache.Get(key); ok {
		c.observe("hit")
		return f, nil
	}
	c.observe("miss")

	f, err := decodeFilter(data)
	if err != nil {
		return filter.Filter{}, err
	}
	c.cache.Add(key, f)
	return f, nil
}

func (c *filterCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.FilterCache.WithLabelValues(result).Inc()
	}
}

func decodeFilter(data []byte) (filter.Filter, error) {
	var f filter.Filter
	if err := f.UnmarshalBinary(data); err != nil {
		return filter.Filter{}, err
	}
	return f, nil
}
