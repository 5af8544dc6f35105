package ratelimit

import (
	"time"

	"careplane/pkg/config"
	"careplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(ProvideCounter),
)

type CounterParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func ProvideCounter(p CounterParams) Counter {
	if p.Config.RateLimit.Store == "redis" && p.Redis != nil {
		return NewRedisCounter(p.Redis)
	}
	return NewMemoryCounter()
}

// KeyFunc derives the accounting key for a request, typically client address
// plus actor identity.
type KeyFunc func(c *gin.Context) string

// Guard rejects requests once the key exceeds limit hits per window. A counter
// failure is logged and the request allowed through; abuse mitigation must not
// take the API down with it. Limits are re-read from the live config snapshot
// on every request so a config reload applies without a restart.
func Guard(counter Counter, limit int64, window time.Duration, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		lim, win := limit, window
		if cfg := config.Current(); cfg != nil {
			if cfg.RateLimit.Limit > 0 {
				lim = cfg.RateLimit.Limit
			}
			if cfg.RateLimit.Window > 0 {
				win = cfg.RateLimit.Window
			}
		}

		// No configured limit means the limiter is off, not "deny all".
		if lim <= 0 || win <= 0 {
			c.Next()
			return
		}

		hits, err := counter.Increment(c.Request.Context(), key(c), win)
		if err != nil {
			zap.L().Error("rate limit counter failed", zap.Error(err))
			c.Next()
			return
		}

		if hits > lim {
			c.Error(errutil.TooManyRequest("too many requests, retry later"))
			c.Abort()
			return
		}

		c.Next()
	}
}
