package fault

import (
	"regexp"
	"sync"
)

// Pattern is a named regex-based detection rule mapping error text to a
// category, severity, tags, and ordered recovery hints.
type Pattern struct {
	ID            string
	Name          string
	Description   string
	Regex         *regexp.Regexp
	Category      Category
	Severity      Severity
	Tags          []string
	RecoveryHints []string
}

// Registry is an ordered collection of detection patterns. Insertion order
// is match priority: Match returns the first pattern whose regex tests
// true. Registering an existing id updates it in place without changing
// its priority.
//
// Runtime add/remove (config reload, CLI) can race with capture, so the
// registry is mutex-guarded.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Pattern
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Pattern),
	}
}

// NewDefaultRegistry returns a registry seeded with the built-in pattern
// set.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range BuiltinPatterns() {
		r.Register(p)
	}
	return r
}

// Register upserts a pattern by id. New ids append at the end of the
// priority order; existing ids keep their position.
func (r *Registry) Register(p *Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Remove deletes a pattern by id, reporting whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return false
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns a snapshot of registered patterns in priority order.
func (r *Registry) List() []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pattern, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Match returns the first registered pattern whose regex matches text, or
// nil when none does.
func (r *Registry) Match(text string) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if p := r.byID[id]; p.Regex.MatchString(text) {
			return p
		}
	}
	return nil
}

// BuiltinPatterns is the fixed detection set registered at startup.
// Operators can extend or override it via the patterns file.
func BuiltinPatterns() []*Pattern {
	return []*Pattern{
		{
			ID:          "db_connection_refused",
			Name:        "Database connection refused",
			Description: "The database is unreachable or refusing connections",
			Regex:       regexp.MustCompile(`(?i)connection refused|could not connect to (database|server)|ECONNREFUSED`),
			Category:    CategoryDatabase,
			Severity:    SeverityCritical,
			Tags:        []string{"database", "connectivity"},
			RecoveryHints: []string{
				"Check database process health",
				"Verify connection string and network path",
				"Inspect connection pool saturation",
			},
		},
		{
			ID:          "db_deadlock",
			Name:        "Database deadlock",
			Description: "Two or more transactions are waiting on each other",
			Regex:       regexp.MustCompile(`(?i)deadlock (detected|found)`),
			Category:    CategoryDatabase,
			Severity:    SeverityHigh,
			Tags:        []string{"database", "contention"},
			RecoveryHints: []string{
				"Retry the transaction",
				"Review lock ordering in the involved queries",
			},
		},
		{
			ID:          "auth_token_expired",
			Name:        "Expired auth token",
			Description: "A request carried an expired authentication token",
			Regex:       regexp.MustCompile(`(?i)(token|jwt) (is )?expired|TokenExpiredError`),
			Category:    CategoryAuthentication,
			Severity:    SeverityMedium,
			Tags:        []string{"auth", "token"},
			RecoveryHints: []string{
				"Refresh the session token",
				"Check clock skew between services",
			},
		},
		{
			ID:          "rate_limited",
			Name:        "Rate limited",
			Description: "An upstream rejected the request for exceeding its rate limit",
			Regex:       regexp.MustCompile(`(?i)rate limit(ed)?( exceeded)?|too many requests|HTTP 429`),
			Category:    CategoryNetwork,
			Severity:    SeverityMedium,
			Tags:        []string{"network", "throttling"},
			RecoveryHints: []string{
				"Back off and retry with jitter",
				"Review client request budget",
			},
		},
		{
			ID:          "order_rejected",
			Name:        "Order rejected",
			Description: "An exchange or venue rejected an order submission",
			Regex:       regexp.MustCompile(`(?i)order (was )?rejected|reject(ion)? code`),
			Category:    CategoryTrading,
			Severity:    SeverityHigh,
			Tags:        []string{"trading", "orders"},
			RecoveryHints: []string{
				"Inspect the venue reject code",
				"Verify instrument and account status",
			},
		},
		{
			ID:          "market_data_stale",
			Name:        "Stale market data",
			Description: "A market data feed stopped updating or lags badly",
			Regex:       regexp.MustCompile(`(?i)(market data|feed|quote).*(stale|lag|gap)|stale (tick|price)`),
			Category:    CategoryMarketData,
			Severity:    SeverityMedium,
			Tags:        []string{"market_data", "feed"},
			RecoveryHints: []string{
				"Failover to the secondary feed",
				"Check feed handler sequence numbers",
			},
		},
		{
			ID:          "out_of_memory",
			Name:        "Out of memory",
			Description: "The process or host exhausted available memory",
			Regex:       regexp.MustCompile(`(?i)out of memory|OOM[ -]?kill|cannot allocate memory`),
			Category:    CategorySystem,
			Severity:    SeverityCritical,
			Tags:        []string{"system", "memory"},
			RecoveryHints: []string{
				"Capture a heap profile before restart",
				"Review recent deploys for leaks",
			},
		},
		{
			ID:          "tls_handshake_failed",
			Name:        "TLS handshake failure",
			Description: "A TLS connection could not be established",
			Regex:       regexp.MustCompile(`(?i)tls.*handshake (failure|failed|error)|certificate (expired|unknown)`),
			Category:    CategorySecurity,
			Severity:    SeverityHigh,
			Tags:        []string{"security", "tls"},
			RecoveryHints: []string{
				"Check certificate expiry on both ends",
				"Verify trust store contents",
			},
		},
	}
}
