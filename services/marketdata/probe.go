package marketdata

import (
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// EnvironmentProbe reports whether the process runs in a restricted-egress
// deployment where the upstream site cannot be reached directly. The
// collector uses it to pick its degradation strategy.
type EnvironmentProbe interface {
	Restricted() bool
}

// Platform env vars that imply a hosted deployment with restricted or
// NAT-ed egress toward the upstream site.
var deploymentIndicators = []string{
	"RENDER", "HEROKU", "RAILWAY", "VERCEL", "NETLIFY", "DIGITALOCEAN",
}

// HTTPProbe combines deployment-environment indicators with a cached
// reachability check against the upstream host.
type HTTPProbe struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	checkedAt time.Time
	result    bool
}

// Reachability results are cached so background ticks do not hammer the
// upstream host with probe requests.
const probeCacheTTL = 10 * time.Minute

// NewHTTPProbe creates a probe for the given upstream base URL
func NewHTTPProbe(baseURL string) *HTTPProbe {
	return &HTTPProbe{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Restricted reports whether live fetching should be considered unavailable
func (p *HTTPProbe) Restricted() bool {
	for _, indicator := range deploymentIndicators {
		if os.Getenv(indicator) != "" {
			return true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.checkedAt) < probeCacheTTL {
		return p.result
	}

	resp, err := p.client.Head(p.baseURL)
	p.checkedAt = time.Now()
	if err != nil {
		log.Printf("Environment probe: upstream unreachable: %v", err)
		p.result = true
		return true
	}
	resp.Body.Close()
	p.result = false
	return false
}

// StaticProbe returns a fixed answer, used in tests
type StaticProbe bool

func (p StaticProbe) Restricted() bool { return bool(p) }
