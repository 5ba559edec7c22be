package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/emrgen/docvault/internal/model"
	redis "github.com/redis/go-redis/v9"
)

// generationTTL bounds how long a generation counter outlives its last invalidation.
const generationTTL = 24 * time.Hour

var errStaleGeneration = errors.New("stale cache generation")

func latestKey(documentID string) string {
	return "document:latest:" + documentID
}

func generationKey(documentID string) string {
	return "document:latest:gen:" + documentID
}

var _ LatestCache = (*Redis)(nil)

// Redis shares latest versions between service replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(addr string, ttl time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password set
		DB:       0,  // Use default DB
		Protocol: 2,  // Connection protocol
	})

	return NewRedisWithClient(client, ttl)
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) GetLatest(ctx context.Context, documentID string) (*model.Version, uint64, error) {
	values, err := r.client.MGet(ctx, latestKey(documentID), generationKey(documentID)).Result()
	if err != nil {
		return nil, 0, err
	}

	generation, err := parseGeneration(values[1])
	if err != nil {
		return nil, 0, err
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}

	version := &model.Version{}
	err = json.Unmarshal([]byte(raw), version)
	if err != nil {
		return nil, 0, err
	}

	return version, generation, nil
}

// SetLatest writes the entry in a MULTI watched on the generation key, an invalidation
// racing the fill aborts it.
func (r *Redis) SetLatest(ctx context.Context, documentID string, version *model.Version, generation uint64) error {
	if version == nil {
		return nil
	}

	marshal, err := json.Marshal(version)
	if err != nil {
		return err
	}

	genKey := generationKey(documentID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		value, err := parseGeneration(current)
		if err != nil {
			return err
		}
		if value != generation {
			return errStaleGeneration
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, latestKey(documentID), marshal, r.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}

	return err
}

func (r *Redis) Invalidate(ctx context.Context, documentID string) error {
	genKey := generationKey(documentID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, latestKey(documentID))
		return nil
	})

	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func parseGeneration(value any) (uint64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseUint(v, 10, 64)
	default:
		return 0, errors.New("unexpected generation value")
	}
}
