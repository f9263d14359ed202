package preferences

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore альтернативное хранилище настроек.
// Раскладка ключей: <prefix>:<user>:<section>:groups (hash code -> "f"/"h"/"fh"/""),
// :materials (set избранных), :exclusions (set).
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "prefs"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(user, section, kind string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, user, sectionOr(section), kind)
}

func encodeGroup(p GroupPreference) string {
	var b strings.Builder
	if p.Favorite && !p.Hidden {
		b.WriteByte('f')
	}
	if p.Hidden {
		b.WriteByte('h')
	}
	return b.String()
}

func decodeGroup(v string) GroupPreference {
	p := GroupPreference{Hidden: strings.Contains(v, "h")}
	p.Favorite = !p.Hidden && strings.Contains(v, "f")
	return p
}

func (s *RedisStore) Load(ctx context.Context, user, section string) (Snapshot, error) {
	pipe := s.rdb.Pipeline()
	groups := pipe.HGetAll(ctx, s.key(user, section, "groups"))
	mats := pipe.SMembers(ctx, s.key(user, section, "materials"))
	excl := pipe.SMembers(ctx, s.key(user, section, "exclusions"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("%w: load: %w", ErrFetch, err)
	}

	snap := Snapshot{
		Groups:    make(map[string]GroupPreference, len(groups.Val())),
		Materials: make(map[string]MaterialPreference, len(mats.Val())),
	}
	for code, v := range groups.Val() {
		snap.Groups[code] = decodeGroup(v)
	}
	for _, code := range mats.Val() {
		snap.Materials[code] = MaterialPreference{Favorite: true}
	}
	snap.SearchExclusions = append(snap.SearchExclusions, excl.Val()...)
	sort.Strings(snap.SearchExclusions)
	return snap, nil
}

// PatchGroup читает текущее значение и пишет новое под WATCH, чтобы не потерять
// параллельное изменение второго флага.
func (s *RedisStore) PatchGroup(ctx context.Context, user string, p GroupPatch) error {
	key := s.key(user, p.Section, "groups")
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, p.GroupCode).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next := decodeGroup(cur)
		if p.Favorite != nil {
			next.Favorite = *p.Favorite
		}
		if p.Hidden != nil {
			next.Hidden = *p.Hidden
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, p.GroupCode, encodeGroup(next))
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) PatchMaterial(ctx context.Context, user string, p MaterialPatch) error {
	key := s.key(user, p.Section, "materials")
	if p.Favorite {
		return s.rdb.SAdd(ctx, key, p.MaterialCode).Err()
	}
	return s.rdb.SRem(ctx, key, p.MaterialCode).Err()
}

func (s *RedisStore) ReplaceExclusions(ctx context.Context, user, section string, codes []string) error {
	key := s.key(user, section, "exclusions")
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(codes) > 0 {
			members := make([]any, 0, len(codes))
			for _, c := range codes {
				members = append(members, c)
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return err
}
