package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"questkit/core"
	"questkit/engine"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Ledger implements engine.Ledger on Redis.
// Data structure:
// - progress:{user_id}:{quest_id} -> JSON blob of ProgressRecord
// - progress:user:{user_id} -> set of quest ids held by the user
// - progress:unsettled -> set of "{user_id}:{quest_id}" members owing settlement
type Ledger struct {
	client *redis.Client
}

// New creates a Redis-backed ledger with the provided configuration
func New(config Config) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Ledger{client: client}, nil
}

// NewWithClient creates a Ledger using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

// Close closes the Redis connection
func (l *Ledger) Close() error {
	return l.client.Close()
}

func recordKey(user core.UserID, quest core.QuestID) string {
	return fmt.Sprintf("progress:%d:%d", user, quest)
}

func userSetKey(user core.UserID) string {
	return fmt.Sprintf("progress:user:%d", user)
}

const unsettledKey = "progress:unsettled"

func unsettledMember(user core.UserID, quest core.QuestID) string {
	return fmt.Sprintf("%d:%d", user, quest)
}

// Lua script for the conditional write. The expected status/cycle must
// match the stored record (or the record must be absent); otherwise the
// script replies with a conflict error and writes nothing.
var upsertScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	local expected_status = ARGV[1]
	local expected_cycle = tonumber(ARGV[2])

	if expected_status == '' then
		if current then
			return redis.error_reply('conflict: record exists')
		end
	else
		if not current then
			return redis.error_reply('conflict: record vanished')
		end
		local rec = cjson.decode(current)
		if rec.status ~= expected_status or rec.cycle ~= expected_cycle then
			return redis.error_reply('conflict: state changed')
		end
	end

	redis.call('SET', KEYS[1], ARGV[3])
	redis.call('SADD', KEYS[2], ARGV[4])
	if ARGV[5] == '1' then
		redis.call('SADD', KEYS[3], ARGV[6])
	else
		redis.call('SREM', KEYS[3], ARGV[6])
	end
	return 1
`)

// Lua script updating only the settlement sub-state, guarded by cycle.
var settlementScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if not current then
		return redis.error_reply('notfound')
	end
	local rec = cjson.decode(current)
	if rec.cycle ~= tonumber(ARGV[1]) then
		return redis.error_reply('conflict: cycle moved')
	end
	rec.settlement = ARGV[2]
	redis.call('SET', KEYS[1], cjson.encode(rec))
	if ARGV[2] == 'pending' or ARGV[2] == 'failed' then
		redis.call('SADD', KEYS[2], ARGV[3])
	else
		redis.call('SREM', KEYS[2], ARGV[3])
	end
	return 1
`)

func (l *Ledger) Read(ctx context.Context, user core.UserID, quest core.QuestID) (core.ProgressRecord, error) {
	data, err := l.client.Get(ctx, recordKey(user, quest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ProgressRecord{}, fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
	}
	if err != nil {
		return core.ProgressRecord{}, fmt.Errorf("failed to read record: %w", err)
	}
	var rec core.ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.ProgressRecord{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

func (l *Ledger) Upsert(ctx context.Context, rec core.ProgressRecord, expected core.ExpectedState) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	expectedStatus := ""
	expectedCycle := 0
	if !expected.Absent {
		expectedStatus = string(expected.Status)
		expectedCycle = expected.Cycle
	}
	unsettled := "0"
	if rec.Settlement == core.SettlementPending || rec.Settlement == core.SettlementFailed {
		unsettled = "1"
	}

	keys := []string{recordKey(rec.UserID, rec.QuestID), userSetKey(rec.UserID), unsettledKey}
	err = upsertScript.Run(ctx, l.client, keys,
		expectedStatus, expectedCycle, string(data),
		int64(rec.QuestID), unsettled, unsettledMember(rec.UserID, rec.QuestID),
	).Err()
	if err != nil {
		if isConflictReply(err) {
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		}
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (l *Ledger) SetSettlement(ctx context.Context, user core.UserID, quest core.QuestID, cycle int, state core.SettlementState) error {
	keys := []string{recordKey(user, quest), unsettledKey}
	err := settlementScript.Run(ctx, l.client, keys,
		cycle, string(state), unsettledMember(user, quest),
	).Err()
	if err != nil {
		if isConflictReply(err) {
			return fmt.Errorf("%w: %v", core.ErrConflict, err)
		}
		if isNotFoundReply(err) {
			return fmt.Errorf("%w: no record for user %d quest %d", core.ErrNotFound, user, quest)
		}
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	return nil
}

func (l *Ledger) CountAssignments(ctx context.Context, user core.UserID, quest core.QuestID) (int, error) {
	rec, err := l.Read(ctx, user, quest)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	// Cycle counts lifecycles ever opened for the pair.
	return rec.Cycle, nil
}

func (l *Ledger) ListByUser(ctx context.Context, user core.UserID) ([]core.ProgressRecord, error) {
	ids, err := l.client.SMembers(ctx, userSetKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user quests: %w", err)
	}
	var out []core.ProgressRecord
	for _, id := range ids {
		var quest core.QuestID
		if _, err := fmt.Sscanf(id, "%d", &quest); err != nil {
			continue // skip malformed members
		}
		rec, err := l.Read(ctx, user, quest)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (l *Ledger) ListUnsettled(ctx context.Context, limit int) ([]core.ProgressRecord, error) {
	members, err := l.client.SMembers(ctx, unsettledKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled records: %w", err)
	}
	var out []core.ProgressRecord
	for _, m := range members {
		var user core.UserID
		var quest core.QuestID
		if _, err := fmt.Sscanf(m, "%d:%d", &user, &quest); err != nil {
			continue
		}
		rec, err := l.Read(ctx, user, quest)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Status != core.StatusClaimed {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func isConflictReply(err error) bool {
	return err != nil && strings.Contains(err.Error(), "conflict")
}

func isNotFoundReply(err error) bool {
	return err != nil && strings.Contains(err.Error(), "notfound")
}

var _ engine.Ledger = (*Ledger)(nil)
