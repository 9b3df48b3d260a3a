package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/gateway"
	redisclient "github.com/chatapp/gateway-server-go/internal/redis"
)

// PresenceSyncJob periodically rewrites the redis presence mirror from the
// in-memory registry, healing any drift left by missed best-effort updates
// (redis blips, process crashes of a previous instance).
type PresenceSyncJob struct {
	registry *gateway.Registry
	redis    *redisclient.Client
	interval time.Duration
	done     chan struct{}
}

func NewPresenceSyncJob(registry *gateway.Registry, redis *redisclient.Client, interval time.Duration) *PresenceSyncJob {
	return &PresenceSyncJob{
		registry: registry,
		redis:    redis,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *PresenceSyncJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("presence sync job started")
}

func (j *PresenceSyncJob) Stop() {
	close(j.done)
	log.Info().Msg("presence sync job stopped")
}

func (j *PresenceSyncJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sync()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sync()
		}
	}
}

func (j *PresenceSyncJob) sync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	online := j.registry.OnlineUserIDs()

	pipe := j.redis.TxPipeline()
	pipe.Del(ctx, redisclient.OnlineUsersKey)
	if len(online) > 0 {
		members := make([]interface{}, len(online))
		for i, id := range online {
			members[i] = id
		}
		pipe.SAdd(ctx, redisclient.OnlineUsersKey, members...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Msg("presence mirror sync failed")
		return
	}

	log.Debug().Int("onlineUsers", len(online)).Msg("presence mirror synced")
}
