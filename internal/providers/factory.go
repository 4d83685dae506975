package providers

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/projectdavid/orchestrator/internal/config"
	"github.com/projectdavid/orchestrator/internal/observability"
)

// Factory builds and memoizes streaming clients. Clients are keyed by
// (provider, api key) so rotating a key yields a fresh client; the cache is
// bounded and evicts least-recently-used entries.
type Factory struct {
	cfg     config.ProviderConfig
	cp      config.ControlPlaneConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[factoryKey]*list.Element
	order *list.List // front = most recently used
	size  int
}

type factoryKey struct {
	provider string
	apiKey   string
}

type factoryEntry struct {
	key    factoryKey
	client StreamingClient
}

// NewFactory creates a Factory bounded by cfg.ClientCacheSize.
func NewFactory(cfg config.ProviderConfig, cp config.ControlPlaneConfig, logger *observability.Logger, metrics *observability.Metrics) *Factory {
	size := cfg.ClientCacheSize
	if size <= 0 {
		size = 32
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Factory{
		cfg:     cfg,
		cp:      cp,
		logger:  logger,
		metrics: metrics,
		cache:   make(map[factoryKey]*list.Element),
		order:   list.New(),
		size:    size,
	}
}

// Get returns the memoized client for (provider, apiKey), building it on
// first use. baseURL, when non-empty, overrides the provider's default
// endpoint for a newly built client only.
func (f *Factory) Get(provider, apiKey, baseURL string) (StreamingClient, error) {
	key := factoryKey{provider: provider, apiKey: apiKey}

	f.mu.Lock()
	defer f.mu.Unlock()

	if elem, ok := f.cache[key]; ok {
		f.order.MoveToFront(elem)
		return elem.Value.(*factoryEntry).client, nil
	}

	client, err := f.build(provider, apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	elem := f.order.PushFront(&factoryEntry{key: key, client: client})
	f.cache[key] = elem

	for f.order.Len() > f.size {
		oldest := f.order.Back()
		f.order.Remove(oldest)
		delete(f.cache, oldest.Value.(*factoryEntry).key)
	}
	return client, nil
}

func (f *Factory) build(provider, apiKey, baseURL string) (StreamingClient, error) {
	endpoint := baseURL
	switch provider {
	case ProviderOpenAI:
		// go-openai's default endpoint unless overridden.
	case ProviderTogether:
		if endpoint == "" {
			endpoint = f.cfg.TogetherBaseURL
		}
	case ProviderHyperbolic:
		if endpoint == "" {
			endpoint = f.cfg.HyperbolicBaseURL
		}
	case ProviderControlPlane:
		if endpoint == "" {
			endpoint = f.cp.BaseURL + "/v1"
		}
		if apiKey == "" {
			apiKey = f.cp.AdminAPIKey
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return newOpenAICompatClient(provider, apiKey, endpoint, f.cfg.Timeout, f.logger, f.metrics), nil
}
