package network

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/APTrust/preservation-fixity/constants"
	"github.com/APTrust/preservation-fixity/fixity"
	"github.com/APTrust/preservation-fixity/models/history"
	"github.com/go-redis/redis/v7"
)

var _ fixity.StateIndex = (*RedisClient)(nil)

// upsertScript applies a check to an object's state only if the check
// is newer than the one already there. The order key is compared
// first, then the record id. Both are fixed-width strings, so string
// comparison gives the right answer without number precision loss.
// A stale check still puts the object back in the due set at the
// stored score, which repairs a due set that lost members.
//
// KEYS[1] state hash, KEYS[2] due set
// ARGV object id, order key, record id, score, last checked, last started, outcome
var upsertScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'order_key', 'record_id', 'score')
if cur[1] then
  if cur[1] > ARGV[2] or (cur[1] == ARGV[2] and cur[2] and cur[2] >= ARGV[3]) then
    if cur[3] then
      redis.call('ZADD', KEYS[2], cur[3], ARGV[1])
    end
    return 0
  end
end
redis.call('HMSET', KEYS[1],
  'object_id', ARGV[1],
  'order_key', ARGV[2],
  'record_id', ARGV[3],
  'score', ARGV[4],
  'last_checked_at', ARGV[5],
  'last_started_at', ARGV[6],
  'outcome', ARGV[7])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// neverChecked is the due-set score of registered objects that have
// no check yet. It sorts ahead of every real timestamp.
var neverChecked = math.Inf(-1)

// RedisClient keeps the state index in Redis. Each object has a hash
// at fixity:state:<id> holding its latest check, and a member in the
// sorted set fixity:due scored by last check time in milliseconds.
// Members with equal scores sort by id, which gives DueBefore its
// tie-break for free.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(address, password string, db int) *RedisClient {
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}
}

func (c *RedisClient) Ping() (string, error) {
	return c.client.Ping().Result()
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Register(ctx context.Context, objectIDs ...string) error {
	if len(objectIDs) == 0 {
		return nil
	}
	members := make([]*redis.Z, len(objectIDs))
	for i, objectID := range objectIDs {
		members[i] = &redis.Z{Score: neverChecked, Member: objectID}
	}
	_, err := c.client.WithContext(ctx).ZAddNX(constants.RedisKeyDue, members...).Result()
	if err != nil {
		return fmt.Errorf("Register (%d objects): %s", len(objectIDs), err.Error())
	}
	return nil
}

func (c *RedisClient) Upsert(ctx context.Context, objectID string, record *history.CheckRecord) error {
	_, err := c.upsert(ctx, objectID, record)
	return err
}

// upsert returns true if record replaced the object's state.
func (c *RedisClient) upsert(ctx context.Context, objectID string, record *history.CheckRecord) (bool, error) {
	if record == nil || record.ObjectID != objectID {
		return false, fmt.Errorf("Upsert (%s): record does not belong to this object", objectID)
	}
	state := history.StateFromRecord(record)
	keys := []string{stateKey(objectID), constants.RedisKeyDue}
	applied, err := upsertScript.Run(c.client.WithContext(ctx), keys,
		objectID,
		orderKey(record.StartedAt),
		record.ID,
		state.LastCheckedAt.UnixMilli(),
		state.LastCheckedAt.Format(time.RFC3339Nano),
		state.LastStartedAt.Format(time.RFC3339Nano),
		state.LastOutcome.String(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("Upsert (%s): %s", objectID, err.Error())
	}
	return applied == 1, nil
}

func (c *RedisClient) Get(ctx context.Context, objectID string) (*history.CurrentState, error) {
	data, err := c.client.WithContext(ctx).HGetAll(stateKey(objectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("Get (%s): %s", objectID, err.Error())
	}
	if len(data) == 0 {
		return nil, nil
	}
	state := &history.CurrentState{
		ObjectID:     objectID,
		LastRecordID: data["record_id"],
	}
	if state.LastCheckedAt, err = time.Parse(time.RFC3339Nano, data["last_checked_at"]); err != nil {
		return nil, fmt.Errorf("Get (%s): bad last_checked_at: %s", objectID, err.Error())
	}
	if state.LastStartedAt, err = time.Parse(time.RFC3339Nano, data["last_started_at"]); err != nil {
		return nil, fmt.Errorf("Get (%s): bad last_started_at: %s", objectID, err.Error())
	}
	if state.LastOutcome, err = history.ParseOutcome(data["outcome"]); err != nil {
		return nil, fmt.Errorf("Get (%s): %s", objectID, err.Error())
	}
	return state, nil
}

func (c *RedisClient) DueBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: exclusive(cutoff),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := c.client.WithContext(ctx).ZRangeByScore(constants.RedisKeyDue, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("DueBefore (%s): %s", cutoff.Format(time.RFC3339), err.Error())
	}
	return ids, nil
}

func (c *RedisClient) CountDueBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := c.client.WithContext(ctx).ZCount(constants.RedisKeyDue, "-inf", exclusive(cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("CountDueBefore (%s): %s", cutoff.Format(time.RFC3339), err.Error())
	}
	return count, nil
}

// RebuildFrom replays every record in store and returns the number
// that changed an object's state. Upsert keeps only the newest record
// per object, so replay order does not matter and the rebuild can run
// while checks are still being written. Objects whose state survived
// but whose due-set member was lost get the member back.
func (c *RedisClient) RebuildFrom(ctx context.Context, store fixity.HistoryStore) (int, error) {
	count := 0
	err := store.Scan(ctx, func(record *history.CheckRecord) error {
		applied, err := c.upsert(ctx, record.ObjectID, record)
		if err != nil {
			return err
		}
		if applied {
			count++
		}
		return nil
	})
	return count, err
}

// Reset removes the due set and all state. Objects must be registered
// again after a reset. The due set goes first, so an Upsert that runs
// concurrently cannot leave a state hash with no due member.
func (c *RedisClient) Reset(ctx context.Context) error {
	client := c.client.WithContext(ctx)
	if err := client.Del(constants.RedisKeyDue).Err(); err != nil {
		return fmt.Errorf("Reset: %s", err.Error())
	}
	var cursor uint64
	for {
		keys, next, err := client.Scan(cursor, constants.RedisKeyStatePrefix+"*", 500).Result()
		if err != nil {
			return fmt.Errorf("Reset: %s", err.Error())
		}
		if len(keys) > 0 {
			if err := client.Del(keys...).Err(); err != nil {
				return fmt.Errorf("Reset: %s", err.Error())
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func stateKey(objectID string) string {
	return constants.RedisKeyStatePrefix + objectID
}

// orderKey encodes t as a fixed-width string that sorts the same way
// as t, including times before 1970.
func orderKey(t time.Time) string {
	return fmt.Sprintf("%020d", uint64(t.UnixNano())^(1<<63))
}

func exclusive(cutoff time.Time) string {
	return "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
}
