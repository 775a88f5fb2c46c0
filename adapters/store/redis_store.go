package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore
const DefaultRedisPrefix = "sigauth:"

// commitScript applies a transition in one atomic step.
// KEYS: consumed set, status hash, journal, account journal
// ARGV: signature key ("" for none), account, status, event json, event seq
// Returns 1 when applied, 0 for a consumed signature, -1 when the journal
// length is not seq-1.
var commitScript = redis.NewScript(`
if redis.call("LLEN", KEYS[3]) ~= tonumber(ARGV[5]) - 1 then
	return -1
end
if ARGV[1] ~= "" then
	if redis.call("SADD", KEYS[1], ARGV[1]) == 0 then
		return 0
	end
end
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
redis.call("RPUSH", KEYS[3], ARGV[4])
redis.call("RPUSH", KEYS[4], ARGV[4])
return 1
`)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, prefix string) ports.Store {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) consumedKey() string { return s.prefix + "consumed" }
func (s *RedisStore) statusKey() string   { return s.prefix + "status" }
func (s *RedisStore) journalKey() string  { return s.prefix + "journal" }

func (s *RedisStore) accountJournalKey(account common.Address) string {
	return s.prefix + "journal:" + account.Hex()
}

// Status reads an account status from the status hash
func (s *RedisStore) Status(ctx context.Context, account common.Address) (core.Status, error) {
	val, err := s.client.HGet(ctx, s.statusKey(), account.Hex()).Result()
	if errors.Is(err, redis.Nil) {
		return core.StatusUnauthenticated, nil
	}
	if err != nil {
		return core.StatusUnauthenticated, fmt.Errorf("failed to read status: %w", err)
	}

	n, err := strconv.ParseUint(val, 10, 8)
	if err != nil || core.Status(n) > core.StatusAuthenticated {
		return core.StatusUnauthenticated, fmt.Errorf("corrupt status %q: %w", val, core.ErrStoreOperationFailed)
	}
	return core.Status(n), nil
}

// IsSignatureConsumed checks membership in the consumed set
func (s *RedisStore) IsSignatureConsumed(ctx context.Context, key common.Hash) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.consumedKey(), key.Hex()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check consumed signature: %w", err)
	}
	return ok, nil
}

// Commit runs the commit script
func (s *RedisStore) Commit(ctx context.Context, t *core.Transition) error {
	payload, err := json.Marshal(t.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	sigKey := ""
	if t.Consumes() {
		sigKey = t.SignatureKey.Hex()
	}

	keys := []string{s.consumedKey(), s.statusKey(), s.journalKey(), s.accountJournalKey(t.Account)}
	applied, err := commitScript.Run(ctx, s.client, keys,
		sigKey, t.Account.Hex(), strconv.Itoa(int(t.Status)), string(payload),
		strconv.FormatUint(t.Event.Seq, 10)).Int()
	if err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	switch applied {
	case 0:
		return core.ErrSignatureAlreadyUsed
	case -1:
		return core.ErrHeadConflict
	}

	return nil
}

// Head returns the last journal entry
func (s *RedisStore) Head(ctx context.Context) (*core.Event, error) {
	val, err := s.client.LIndex(ctx, s.journalKey(), -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal head: %w", err)
	}

	var event core.Event
	if err := json.Unmarshal([]byte(val), &event); err != nil {
		return nil, fmt.Errorf("corrupt journal head: %w", err)
	}
	return &event, nil
}

// Events returns the whole journal
func (s *RedisStore) Events(ctx context.Context) ([]core.Event, error) {
	return s.readJournal(ctx, s.journalKey())
}

// AccountEvents returns the journal of one account
func (s *RedisStore) AccountEvents(ctx context.Context, account common.Address) ([]core.Event, error) {
	return s.readJournal(ctx, s.accountJournalKey(account))
}

func (s *RedisStore) readJournal(ctx context.Context, key string) ([]core.Event, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	events := make([]core.Event, 0, len(vals))
	for _, val := range vals {
		var event core.Event
		if err := json.Unmarshal([]byte(val), &event); err != nil {
			return nil, fmt.Errorf("corrupt journal entry: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
