package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ephemeral-core/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava os contadores em hashes do Redis, um pipeline por decisão:
//
//	<prefix>:total                 allowed / denied
//	<prefix>:minute:<yyyymmddhhmm> allowed / denied (expira com ttl)
//	<prefix>:kind                  user:allowed, ip:denied, ...
//	<prefix>:route                 "GET /api/v1/regionais:allowed", ...
//	<prefix>:key:<key>             só com WithStatsTrackKeys (expira com ttl)
//
// Várias instâncias do coordinator podem gravar no mesmo prefixo.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	bucket    string // "minute" (padrão) ou "none"
	trackKeys bool
}

var (
	_ domain.StatsStore  = (*RedisStatsStore)(nil)
	_ domain.StatsReader = (*RedisStatsStore)(nil)
)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type increment struct {
	key    string
	field  string
	expire bool
}

// increments lista os HINCRBY de um evento.
func (s *RedisStatsStore) increments(ev domain.StatsEvent) []increment {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	out := []increment{{key: s.prefix + ":total", field: field}}
	if s.bucket == "minute" {
		out = append(out, increment{key: s.prefix + ":minute:" + at.UTC().Format("200601021504"), field: field, expire: true})
	}
	if kind := strings.TrimSpace(ev.KeyKind); kind != "" {
		out = append(out, increment{key: s.prefix + ":kind", field: kind + ":" + field})
	}
	if route := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)); route != "" {
		out = append(out, increment{key: s.prefix + ":route", field: route + ":" + field})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		out = append(out, increment{key: s.prefix + ":key:" + k, field: field, expire: true})
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, inc := range s.increments(ev) {
		pipe.HIncrBy(ctx, inc.key, inc.field, 1)
		if inc.expire && s.ttl > 0 {
			pipe.Expire(ctx, inc.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot lê total, kind e route. Contadores por chave ficam fora (exigiria SCAN).
func (s *RedisStatsStore) Snapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	pipe := s.rdb.Pipeline()
	total := pipe.HGetAll(ctx, s.prefix+":total")
	kind := pipe.HGetAll(ctx, s.prefix+":kind")
	route := pipe.HGetAll(ctx, s.prefix+":route")
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.StatsSnapshot{}, err
	}

	out := domain.StatsSnapshot{
		ByKind:  groupCounters(kind.Val()),
		ByRoute: groupCounters(route.Val()),
	}
	out.Total.Allowed, _ = strconv.ParseInt(total.Val()["allowed"], 10, 64)
	out.Total.Denied, _ = strconv.ParseInt(total.Val()["denied"], 10, 64)
	return out, nil
}

// groupCounters junta campos "<nome>:allowed" / "<nome>:denied" por nome.
func groupCounters(h map[string]string) map[string]domain.Counters {
	out := make(map[string]domain.Counters)
	for f, v := range h {
		i := strings.LastIndexByte(f, ':')
		if i <= 0 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		name, field := f[:i], f[i+1:]
		c := out[name]
		switch field {
		case "allowed":
			c.Allowed += n
		case "denied":
			c.Denied += n
		default:
			continue
		}
		out[name] = c
	}
	return out
}
