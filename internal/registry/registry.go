// Package registry shares CPU reports between gate instances.  Reports are
// kept in Redis when it is reachable and always in a local cache.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Redis keys.
const (
	ReportKeyPrefix = "cpucheck:report:"
	HostsKey        = "cpucheck:hosts"
)

// DefaultTTL applies when New is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// Registry stores the latest report per host.
type Registry struct {
	mutex       sync.RWMutex
	redisClient *redis.Client
	memoryCache *cache.Cache
	ttl         time.Duration
}

// New creates a registry.  redisURL may be empty; an invalid or
// unreachable Redis leaves the registry on its memory backend.
func New(redisURL string, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		memoryCache: cache.New(ttl, time.Hour),
		ttl:         ttl,
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err == nil {
			r.redisClient = redis.NewClient(opt)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := r.redisClient.Ping(ctx).Err(); err == nil {
				log.Infof("Report registry: Redis backend initialized (%s)", redisURL)
			} else {
				log.Warnf("Report registry: Redis connection failed, using memory backend: %v", err)
				r.redisClient.Close()
				r.redisClient = nil
			}
		} else {
			log.Warnf("Report registry: Invalid Redis URL, using memory backend: %v", err)
		}
	}

	if r.redisClient == nil {
		log.Infof("Report registry: Memory backend initialized")
	}
	return r
}

// Backend names the active store, "redis" or "memory".
func (r *Registry) Backend() string {
	if r.redisClient != nil {
		return "redis"
	}
	return "memory"
}

// Close releases the Redis connection.
func (r *Registry) Close() error {
	if r.redisClient != nil {
		return r.redisClient.Close()
	}
	return nil
}

func hostKey(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Publish stores rep under its hostname.
func (r *Registry) Publish(ctx context.Context, rep *cpucheck.Report) error {
	if rep == nil {
		return fmt.Errorf("registry: nil report")
	}
	host := hostKey(rep.Hostname)
	if host == "" {
		return fmt.Errorf("registry: report has no hostname")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.redisClient != nil {
		data, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("registry: encode report: %w", err)
		}
		pipe := r.redisClient.TxPipeline()
		pipe.Set(ctx, ReportKeyPrefix+host, data, r.ttl)
		pipe.SAdd(ctx, HostsKey, host)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warnf("Report registry: Redis publish for %s failed: %v", host, err)
		} else {
			log.Debugf("Report stored in Redis: %s", host)
		}
	}

	copied := *rep
	r.memoryCache.Set(host, &copied, r.ttl)
	log.Debugf("Report stored in memory: %s", host)
	return nil
}

// Lookup returns the latest report for host, or nil when none is known.
func (r *Registry) Lookup(ctx context.Context, host string) (*cpucheck.Report, error) {
	host = hostKey(host)
	if host == "" {
		return nil, nil
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.redisClient != nil {
		data, err := r.redisClient.Get(ctx, ReportKeyPrefix+host).Result()
		switch {
		case err == nil:
			var rep cpucheck.Report
			if err := json.Unmarshal([]byte(data), &rep); err == nil {
				log.Debugf("Report retrieved from Redis: %s", host)
				return &rep, nil
			}
		case err != redis.Nil:
			log.Warnf("Report registry: Redis lookup for %s failed: %v", host, err)
		}
	}

	if v, found := r.memoryCache.Get(host); found {
		if rep, ok := v.(*cpucheck.Report); ok {
			copied := *rep
			return &copied, nil
		}
	}
	return nil, nil
}

// Hosts lists the hosts with a stored report, sorted.  Hosts whose report
// expired from Redis are pruned from the set.
func (r *Registry) Hosts(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	r.mutex.RLock()
	if r.redisClient != nil {
		members, err := r.redisClient.SMembers(ctx, HostsKey).Result()
		if err != nil {
			log.Warnf("Report registry: Redis host list failed: %v", err)
		}
		for _, h := range members {
			n, err := r.redisClient.Exists(ctx, ReportKeyPrefix+h).Result()
			if err == nil && n == 0 {
				r.redisClient.SRem(ctx, HostsKey, h)
				continue
			}
			seen[h] = struct{}{}
		}
	}
	for h := range r.memoryCache.Items() {
		seen[h] = struct{}{}
	}
	r.mutex.RUnlock()

	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts, nil
}
