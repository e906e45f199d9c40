package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/vault-client-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) *Health
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
	vault *vault.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
	Vault *vault.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
		vault: p.Vault,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	result := h.Check(c.Request.Context())
	code := http.StatusOK
	if result.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, result)
}

// Check pings every configured dependency with a short deadline.
func (h *health) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := &Health{Status: StatusHealthy, Message: "OK"}

	check := func(name string, fn func() error) {
		dep := Dependency{Name: name, Status: StatusHealthy, Message: "OK"}
		if err := fn(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			result.Status = StatusUnhealthy
			result.Message = "one or more dependencies are unhealthy"
		}
		result.Deps = append(result.Deps, dep)
	}

	if h.db != nil {
		check("database:"+h.db.Name(), func() error {
			sqlDB, err := h.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}

	if h.redis != nil {
		check("redis", func() error {
			return h.redis.Ping(ctx).Err()
		})
	}

	if h.vault != nil {
		check("vault", func() error {
			_, err := h.vault.Read(ctx, "/sys/health")
			return err
		})
	}

	return result
}
