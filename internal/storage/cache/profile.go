// Package cache 用戶資料的 Redis 快取
package cache

import (
	"context"
	"time"

	"groupchat-gateway/internal/chat"
	"groupchat-gateway/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	keyPrefix  = "groupchat:user:"
	DefaultTTL = 5 * time.Minute
)

// cachedUser 快取中的用戶資料
type cachedUser struct {
	ID             string `msgpack:"id"`
	Username       string `msgpack:"u"`
	FirstName      string `msgpack:"f"`
	LastName       string `msgpack:"l"`
	ProfilePicture string `msgpack:"p,omitempty"`
	IsDeleted      bool   `msgpack:"d,omitempty"`
}

func encodeUser(u *chat.User) ([]byte, error) {
	return msgpack.Marshal(cachedUser{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		ProfilePicture: u.ProfilePicture,
		IsDeleted:      u.IsDeleted,
	})
}

func decodeUser(data []byte) (*chat.User, error) {
	var c cachedUser
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &chat.User{
		ID:             c.ID,
		Username:       c.Username,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		ProfilePicture: c.ProfilePicture,
		IsDeleted:      c.IsDeleted,
	}, nil
}

// KV 快取需要的最小操作
type KV interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
}

// RedisKV 以 go-redis 實作 KV
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV 創建 Redis KV
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// MGet 批次讀取，不存在的鍵返回 nil
func (r *RedisKV) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// SetMany 以 pipeline 批次寫入
func (r *RedisKV) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range items {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}

// UserDirectory 在用戶存儲前加一層快取。只快取查得到的用戶，失效依賴 TTL。
type UserDirectory struct {
	next chat.UserDirectory
	kv   KV
	ttl  time.Duration
}

// NewUserDirectory 創建帶快取的用戶查詢；kv 為 nil 時直接查詢下層
func NewUserDirectory(next chat.UserDirectory, kv KV, ttl time.Duration) *UserDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UserDirectory{next: next, kv: kv, ttl: ttl}
}

// GetByIDs 先讀快取，缺少的再查詢下層並回填
func (d *UserDirectory) GetByIDs(ctx context.Context, ids []string) (map[string]*chat.User, error) {
	if d.kv == nil || len(ids) == 0 {
		return d.next.GetByIDs(ctx, ids)
	}

	out := make(map[string]*chat.User, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}

	missing := ids
	vals, err := d.kv.MGet(ctx, keys)
	if err != nil {
		// 快取不可用時退回資料庫
		logger.Warning(ctx, "讀取用戶快取失敗", logger.WithError(err))
	} else {
		missing = make([]string, 0, len(ids))
		for i, id := range ids {
			if i < len(vals) && vals[i] != nil {
				if u, err := decodeUser(vals[i]); err == nil {
					out[id] = u
					continue
				}
			}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := d.next.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	fill := make(map[string][]byte, len(found))
	for id, u := range found {
		out[id] = u
		if data, err := encodeUser(u); err == nil {
			fill[keyPrefix+id] = data
		}
	}
	if len(fill) > 0 {
		if err := d.kv.SetMany(ctx, fill, d.ttl); err != nil {
			logger.Warning(ctx, "寫入用戶快取失敗", logger.WithError(err))
		}
	}
	return out, nil
}
