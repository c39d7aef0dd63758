package license

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/singleflight"

	"licensegate/internal/security"
	"licensegate/pkg/contracts/domain"
)

// Team is a resolved team with its private key ready for use
type Team struct {
	Policy     *domain.TeamPolicy
	PrivateKey *rsa.PrivateKey
}

type teamEntry struct {
	team      *Team
	cachedAt  time.Time
	expiresAt time.Time
}

// TeamCache is a read-through TTL cache of resolved teams. Concurrent misses
// for the same team share one store round trip.
type TeamCache struct {
	store   Store
	keyring *security.Keyring
	clock   quartz.Clock
	ttl     time.Duration
	maxSize int

	mutex     sync.Mutex
	entries   map[string]teamEntry
	group     singleflight.Group
	hitCount  int64
	missCount int64
}

// NewTeamCache creates a team cache. A ttl of zero disables caching.
func NewTeamCache(store Store, keyring *security.Keyring, clock quartz.Clock, ttl time.Duration, maxSize int) *TeamCache {
	return &TeamCache{
		store:   store,
		keyring: keyring,
		clock:   clock,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]teamEntry),
	}
}

// Get returns the team or ErrNotFound. Soft-deleted teams are reported as
// not found.
func (c *TeamCache) Get(ctx context.Context, teamID string) (*Team, error) {
	if team, ok := c.lookup(teamID); ok {
		return team, nil
	}

	v, err, _ := c.group.Do(teamID, func() (any, error) {
		team, err := c.load(ctx, teamID)
		if err != nil {
			return nil, err
		}
		c.set(teamID, team)
		return team, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Team), nil
}

func (c *TeamCache) lookup(teamID string) (*Team, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[teamID]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	return entry.team, true
}

func (c *TeamCache) set(teamID string, team *Team) {
	if c.ttl <= 0 || c.maxSize <= 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[teamID]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	now := c.clock.Now()
	c.entries[teamID] = teamEntry{team: team, cachedAt: now, expiresAt: now.Add(c.ttl)}
}

func (c *TeamCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *TeamCache) load(ctx context.Context, teamID string) (*Team, error) {
	policy, err := c.store.FindTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if policy.Deleted() {
		return nil, ErrNotFound
	}

	team := &Team{Policy: policy}
	if policy.KeyPair != nil && policy.KeyPair.PrivateKey != "" {
		pemData, err := c.keyring.DecryptAtRest(policy.KeyPair.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt team private key: %w", err)
		}
		key, err := security.ParsePrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("parse team private key: %w", err)
		}
		team.PrivateKey = key
	}
	return team, nil
}

// Invalidate drops a cached team
func (c *TeamCache) Invalidate(teamID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, teamID)
}

// CacheStats is a snapshot of cache counters
type CacheStats struct {
	Entries   int     `json:"entries"`
	MaxSize   int     `json:"max_size"`
	HitCount  int64   `json:"hit_count"`
	MissCount int64   `json:"miss_count"`
	HitRatio  float64 `json:"hit_ratio"`
}

// Stats returns cache statistics
func (c *TeamCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	stats := CacheStats{
		Entries:   len(c.entries),
		MaxSize:   c.maxSize,
		HitCount:  c.hitCount,
		MissCount: c.missCount,
	}
	if total := c.hitCount + c.missCount; total > 0 {
		stats.HitRatio = float64(c.hitCount) / float64(total)
	}
	return stats
}

// isNotFound reports whether err means the record does not exist
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
