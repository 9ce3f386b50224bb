package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"polyticker/internal/application/port"
	"polyticker/internal/application/usecase/ticker"
	"polyticker/internal/infrastructure/config"
	"polyticker/internal/infrastructure/feed"
	"polyticker/internal/infrastructure/gamma"
	"polyticker/internal/infrastructure/storage/composite"
	pgrepo "polyticker/internal/infrastructure/storage/postgres"
	redisrepo "polyticker/internal/infrastructure/storage/redis"
	sqliterepo "polyticker/internal/infrastructure/storage/sqlite"
	"polyticker/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	Gamma  *gamma.Client
	Labels *gamma.LabelCache
	Feed   *feed.Manager
	Repo   port.Repository

	// 输出端口
	Sink port.Sink

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 这是应用启动的唯一入口点，所有依赖初始化都在这里完成
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	client := gamma.NewClient(cfg.Gamma.BaseURL,
		gamma.WithTimeout(time.Duration(cfg.Gamma.TimeoutSec)*time.Second),
		gamma.WithRetries(cfg.GammaRetries(), 0),
		gamma.WithRateLimit(cfg.Gamma.RateLimitRPS, int(cfg.Gamma.RateLimitRPS)+1),
		gamma.WithEventsLimit(cfg.Gamma.EventsLimit),
	)
	labels := gamma.NewLabelCache(client, cfg.Gamma.LabelConcurrency)

	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Gamma:       client,
		Labels:      labels,
		Feed:        feed.NewManager(connConfig(cfg), labels),
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeStorage(); err != nil {
		// 清理已初始化的资源
		_ = sc.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageInitFailed, err)
	}
	return sc, nil
}

func connConfig(cfg *config.Config) feed.ConnConfig {
	c := feed.DefaultConnConfig()
	c.URL = cfg.Feed.WsURL
	c.StartTimeout = time.Duration(cfg.Feed.StartTimeoutMs) * time.Millisecond
	c.PingInterval = time.Duration(cfg.Feed.PingEverySec) * time.Second
	c.BackoffMin = time.Duration(cfg.Feed.BackoffMinMs) * time.Millisecond
	c.BackoffMax = time.Duration(cfg.Feed.BackoffMaxMs) * time.Millisecond
	if cfg.Feed.ReadTimeoutSec > 0 {
		c.ReadTimeout = time.Duration(cfg.Feed.ReadTimeoutSec) * time.Second
	}
	return c
}

// initializeStorage 初始化存储层 (SQLite / Redis / Postgres)，未启用任何后端时使用 noop
// 所有后端统一由 composite 关闭
func (sc *ServiceContext) initializeStorage() error {
	var repos []port.Repository
	fail := func(name string, err error) error {
		_ = composite.New(repos...).Close()
		return fmt.Errorf("%s: %w", name, err)
	}

	if sc.Config.SQLite.Enabled {
		repo, err := sqliterepo.New(sc.Config.SQLite.Path)
		if err != nil {
			return fail("sqlite", err)
		}
		repos = append(repos, repo)
		log.Info().Str("path", sc.Config.SQLite.Path).Msg("sqlite initialized")
	}

	if sc.Config.Redis.Enabled {
		repo, err := sc.initRedis()
		if err != nil {
			return fail("redis", err)
		}
		repos = append(repos, repo)
	}

	if sc.Config.Postgres.Enabled {
		repo, err := pgrepo.New(sc.Config.Postgres.DSN)
		if err != nil {
			return fail("postgres", err)
		}
		repos = append(repos, repo)
		log.Info().Msg("postgres initialized")
	}

	store := composite.New(repos...)
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Int("backends", store.Len()).Msg("closing storage")
		return store.Close()
	})

	if store.Len() == 0 {
		sc.Repo = ticker.NewNoopRepo()
	} else {
		sc.Repo = store
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     sc.Config.Redis.Addr,
		Password: sc.Config.Redis.Password,
		DB:       sc.Config.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", sc.Config.Redis.Addr).
		Int("db", sc.Config.Redis.DB).
		Msg("redis initialized")

	ttl := time.Duration(sc.Config.Redis.TTLSeconds) * time.Second
	return redisrepo.New(rdb, sc.Config.Redis.Prefix, ttl, sc.Config.Redis.Channel), nil
}

// Discover 返回要跟踪的资产及其所属 market
// 配置了 assets.list 时跳过 Gamma 查询
func (sc *ServiceContext) Discover(ctx context.Context) (assets, marketIDs []string, err error) {
	if list := sc.Config.Assets.List; len(list) > 0 {
		return list, nil, nil
	}

	d, err := sc.Gamma.FetchTargetAssets(ctx)
	if err != nil {
		if errors.Is(err, gamma.ErrNoEvents) || errors.Is(err, gamma.ErrNoTokens) {
			return nil, nil, fmt.Errorf("%w: %w", ErrNoAssets, err)
		}
		return nil, nil, fmt.Errorf("asset discovery: %w", err)
	}
	return d.AssetIDs, d.MarketIDs(), nil
}

// BuildTickerServiceDeps 构建 ticker Service 所需的所有依赖
func (sc *ServiceContext) BuildTickerServiceDeps(assets []string) ticker.ServiceDeps {
	return ticker.ServiceDeps{
		Feed:           sc.Feed,
		Assets:         assets,
		Mode:           ticker.RenderMode(sc.Config.App.RenderMode),
		RenderEvery:    sc.Config.RenderEvery(),
		HeartbeatEvery: sc.Config.HeartbeatEvery(),
		PersistTimeout: sc.Config.PersistTimeout(),
		Color:          sc.Config.App.Color,
		Sink:           sc.Sink,
		Repo:           sc.Repo,
	}
}

// Close 关闭 ServiceContext 中的所有资源
// 应该在应用退出时调用
func (sc *ServiceContext) Close() error {
	if sc.Feed != nil {
		sc.Feed.StopAll()
	}

	// 按照相反的顺序关闭所有资源
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
