package assignengine

import (
	"strings"
	"sync"
	"time"

	"regionmaster/internal/regionstate"
)

// Locality tracks the externally supplied preferred-host mapping and the
// two time windows that govern it: the apply window (locality mode is on at
// all) and the narrower hold-for-best window (within which a region is
// refused to anyone but its preferred host). Once the apply window elapses
// the mapping and quick-start set are cleared and locality mode stays off
// for the rest of the master's lifetime, matching the design note.
type Locality struct {
	mu sync.Mutex

	masterStart time.Time
	applyPeriod time.Duration
	holdPeriod  time.Duration

	preferredHost map[string]string // region encoded name -> preferred hostname
	quickStart    map[string]bool   // hostname -> has heartbeated at least once
	cleared       bool
}

// NewLocality constructs a Locality window starting now. A zero applyPeriod
// disables locality mode entirely.
func NewLocality(now time.Time, applyPeriod, holdPeriod time.Duration, preferredHost map[string]string) *Locality {
	return &Locality{
		masterStart:   now,
		applyPeriod:   applyPeriod,
		holdPeriod:    holdPeriod,
		preferredHost: preferredHost,
		quickStart:    make(map[string]bool),
	}
}

// Active reports whether locality mode currently applies.
func (l *Locality) Active(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleared || l.applyPeriod <= 0 {
		return false
	}
	if now.Sub(l.masterStart) >= l.applyPeriod {
		l.preferredHost = nil
		l.quickStart = nil
		l.cleared = true
		return false
	}
	return true
}

// HoldForBest reports whether the narrower hold-for-best window is still
// open, within which non-preferred servers are refused a region entirely
// rather than merely deprioritized.
func (l *Locality) HoldForBest(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleared || l.holdPeriod <= 0 {
		return false
	}
	return now.Sub(l.masterStart) < l.holdPeriod
}

// NoteHeartbeat records that host has heartbeated at least once, entering
// the quick-start set.
func (l *Locality) NoteHeartbeat(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quickStart != nil {
		l.quickStart[host] = true
	}
}

func (l *Locality) isQuickStart(host string) bool {
	return l.quickStart != nil && l.quickStart[host]
}

// PreferredHost returns the preferred hostname for region, if the mapping
// has one.
func (l *Locality) PreferredHost(region regionstate.Info) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.preferredHost == nil {
		return "", false
	}
	host, ok := l.preferredHost[region.Encoded()]
	return host, ok
}

// Assignable reports whether region may be assigned to reportingServer under
// locality rules: the preferred host's hostname prefix-matches the reporting
// server, or the preferred host hasn't yet quick-started and the
// hold-for-best window has elapsed.
func (l *Locality) Assignable(now time.Time, region regionstate.Info, reportingServer string) bool {
	preferred, ok := l.PreferredHost(region)
	if !ok {
		return true
	}
	if hostPrefixMatch(preferred, reportingServer) {
		return true
	}
	l.mu.Lock()
	quickStarted := l.isQuickStart(preferred)
	l.mu.Unlock()
	if !quickStarted && !l.HoldForBest(now) {
		return true
	}
	return false
}

// hostPrefixMatch reports whether serverAddr's hostname component and
// preferredHost prefix-match in either direction (one starts with the
// other), comparing a bare hostname against a "host:port,startcode"-shaped
// server name. An empty preferredHost never matches.
func hostPrefixMatch(preferredHost, serverAddr string) bool {
	if preferredHost == "" {
		return false
	}
	host := serverAddr
	if idx := strings.IndexAny(host, ":,"); idx >= 0 {
		host = host[:idx]
	}
	return strings.HasPrefix(host, preferredHost) || strings.HasPrefix(preferredHost, host)
}
