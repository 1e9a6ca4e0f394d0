package refresh

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lua scripts run atomically on the server.
var (
	// KEYS = markers, ARGV = owner, lease ms. Returns the 1-based indexes of
	// keys that already exist; when there are none, sets them all.
	tryMarkAllScript = redis.NewScript(`
local held = {}
for i, key in ipairs(KEYS) do
  if redis.call("EXISTS", key) == 1 then
    table.insert(held, i)
  end
end
if #held > 0 then
  return held
end
for _, key in ipairs(KEYS) do
  redis.call("SET", key, ARGV[1], "PX", ARGV[2])
end
return held
`)

	// KEYS[1] = marker, ARGV[1] = owner. Deletes only our own lease.
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

	// KEYS[1] = marker, ARGV = owner, lease ms. Extends only our own lease.
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisTracker stores markers as leased keys so several processes sharing a
// cache directory agree on what is refreshing. A lease that is not extended
// expires on its own, so a crashed process cannot wedge a table.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	lease  time.Duration
	owner  string
	logger *zap.Logger

	mu   sync.Mutex
	held map[string]struct{} // keys this tracker owns, extended by keepAlive

	stop chan struct{}
	done chan struct{}
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker creates a tracker and starts the lease keep-alive loop.
// Call Close to stop it.
func NewRedisTracker(client redis.UniversalClient, prefix string, lease time.Duration, logger *zap.Logger) *RedisTracker {
	t := &RedisTracker{
		client: client,
		prefix: prefix,
		lease:  lease,
		owner:  uuid.NewString(),
		logger: logger.Named("refresh-tracker"),
		held:   make(map[string]struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.keepAlive()
	return t
}

// Close stops the keep-alive loop. Held leases are left to expire.
func (t *RedisTracker) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
	return nil
}

func escapeKeyPart(s string) string {
	// QueryEscape covers ':' and the SCAN glob metacharacters.
	return url.QueryEscape(s)
}

func (t *RedisTracker) schemaPrefix(schema string) string {
	return fmt.Sprintf("%s:refreshing:%s:", t.prefix, escapeKeyPart(schema))
}

func (t *RedisTracker) key(schema, table string) string {
	return t.schemaPrefix(schema) + escapeKeyPart(table)
}

func (t *RedisTracker) remember(keys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		t.held[k] = struct{}{}
	}
}

func (t *RedisTracker) forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
}

func (t *RedisTracker) Mark(ctx context.Context, schema, table string) error {
	key := t.key(schema, table)
	ok, err := t.client.SetNX(ctx, key, t.owner, t.lease).Result()
	if err != nil {
		return fmt.Errorf("mark %s.%s: %w", schema, table, err)
	}
	if ok {
		t.remember(key)
	}
	return nil
}

func (t *RedisTracker) Clear(ctx context.Context, schema, table string) error {
	key := t.key(schema, table)
	t.forget(key)
	if err := releaseScript.Run(ctx, t.client, []string{key}, t.owner).Err(); err != nil {
		return fmt.Errorf("clear %s.%s: %w", schema, table, err)
	}
	return nil
}

func (t *RedisTracker) IsMarked(ctx context.Context, schema, table string) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(schema, table)).Result()
	if err != nil {
		return false, fmt.Errorf("check %s.%s: %w", schema, table, err)
	}
	return n > 0, nil
}

func (t *RedisTracker) Snapshot(ctx context.Context, schema string) ([]string, error) {
	prefix := t.schemaPrefix(schema)
	tables := make([]string, 0)

	iter := t.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		table, err := url.QueryUnescape(strings.TrimPrefix(iter.Val(), prefix))
		if err != nil {
			continue
		}
		tables = append(tables, table)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", schema, err)
	}
	sort.Strings(tables)
	return tables, nil
}

func (t *RedisTracker) TryMarkAll(ctx context.Context, schema string, tables []string) ([]string, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tables))
	for i, table := range tables {
		keys[i] = t.key(schema, table)
	}

	held, err := tryMarkAllScript.Run(ctx, t.client, keys, t.owner, t.lease.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("mark %d tables in %s: %w", len(tables), schema, err)
	}
	if len(held) > 0 {
		conflicts := make([]string, 0, len(held))
		for _, idx := range held {
			conflicts = append(conflicts, tables[idx-1])
		}
		return conflicts, nil
	}

	t.remember(keys...)
	return nil, nil
}

// keepAlive extends every held lease at a third of the lease period.
func (t *RedisTracker) keepAlive() {
	defer close(t.done)

	interval := t.lease / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.extendHeld()
		}
	}
}

func (t *RedisTracker) extendHeld() {
	t.mu.Lock()
	keys := make([]string, 0, len(t.held))
	for k := range t.held {
		keys = append(keys, k)
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.lease/3+time.Second)
	defer cancel()

	for _, key := range keys {
		n, err := extendScript.Run(ctx, t.client, []string{key}, t.owner, t.lease.Milliseconds()).Int64()
		if err != nil {
			t.logger.Warn("Failed to extend refresh lease", zap.String("key", key), zap.Error(err))
			continue
		}
		if n == 0 {
			// Lease expired or was taken over; stop tracking it.
			t.logger.Warn("Refresh lease lost", zap.String("key", key))
			t.forget(key)
		}
	}
}
