package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fleetdesk/fleetdesk/pkg/async"
	"github.com/fleetdesk/fleetdesk/pkg/teamaccess"
)

const (
	// DefaultOrgNameTTL is how long an organization name stays cached
	DefaultOrgNameTTL = 10 * time.Minute

	orgNameKeyPrefix   = "org:name:"
	orgNameWriteBudget = 2 * time.Second
)

// OrgNameCache fronts GetOrganizationName with Redis. Every other Store
// method passes through to the wrapped store.
type OrgNameCache struct {
	teamaccess.Store

	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewOrgNameCache wraps store. A non-positive ttl uses DefaultOrgNameTTL.
func NewOrgNameCache(store teamaccess.Store, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *OrgNameCache {
	if ttl <= 0 {
		ttl = DefaultOrgNameTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OrgNameCache{
		Store:  store,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func orgNameKey(orgID string) string {
	return orgNameKeyPrefix + orgID
}

// GetOrganizationName reads through the cache. Redis errors fall back to the
// store; the write-back happens off the request path.
func (c *OrgNameCache) GetOrganizationName(ctx context.Context, orgID string) (string, error) {
	name, err := c.redis.Get(ctx, orgNameKey(orgID)).Result()
	switch {
	case err == nil:
		return name, nil
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).WithField("organization_id", orgID).Warn("org name cache read failed")
	}

	name, err = c.Store.GetOrganizationName(ctx, orgID)
	if err != nil {
		return "", err
	}

	async.SafeGo(ctx, orgNameWriteBudget, "cache_org_name", c.logger, func(ctx context.Context) error {
		return c.redis.Set(ctx, orgNameKey(orgID), name, c.ttl).Err()
	})
	return name, nil
}

// Invalidate drops the cached name for orgID
func (c *OrgNameCache) Invalidate(ctx context.Context, orgID string) error {
	return c.redis.Del(ctx, orgNameKey(orgID)).Err()
}
