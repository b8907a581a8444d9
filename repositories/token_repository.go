package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrFamilyNotFound means the refresh family expired or was revoked.
	ErrFamilyNotFound = errors.New("refresh family not found")
	// ErrFamilyReplay means a refresh token other than the family's current one was presented.
	ErrFamilyReplay = errors.New("refresh token replay detected")
)

const maxRotateAttempts = 5

// TokenRepository keeps refresh token families and the access token blacklist in Redis.
type TokenRepository interface {
	CreateFamily(ctx context.Context, userID uint, familyID, jti string, ttl time.Duration) error
	Rotate(ctx context.Context, userID uint, familyID, currentJTI, nextJTI string, ttl, blacklistFor time.Duration) error
	RevokeFamily(ctx context.Context, userID uint, familyID string) error
	RevokeUser(ctx context.Context, userID uint) error
	Blacklist(ctx context.Context, jti string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

type tokenRepository struct {
	client *redis.Client
}

func NewTokenRepository(client *redis.Client) TokenRepository {
	return &tokenRepository{client: client}
}

func familyKey(familyID string) string {
	return fmt.Sprintf("refresh:family:%s", familyID)
}

func userFamiliesKey(userID uint) string {
	return fmt.Sprintf("refresh:user_families:%d", userID)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("token:blacklist:%s", jti)
}

func (r *tokenRepository) CreateFamily(ctx context.Context, userID uint, familyID, jti string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, familyKey(familyID), map[string]any{
		"userId":     strconv.FormatUint(uint64(userID), 10),
		"currentJti": jti,
	})
	pipe.Expire(ctx, familyKey(familyID), ttl)
	pipe.SAdd(ctx, userFamiliesKey(userID), familyID)
	pipe.Expire(ctx, userFamiliesKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Rotate swaps the family's current jti for nextJTI and blacklists the old one in
// the same transaction. A stale currentJTI revokes the whole family.
func (r *tokenRepository) Rotate(ctx context.Context, userID uint, familyID, currentJTI, nextJTI string, ttl, blacklistFor time.Duration) error {
	key := familyKey(familyID)
	owner := strconv.FormatUint(uint64(userID), 10)

	for attempt := 0; attempt < maxRotateAttempts; attempt++ {
		var replay bool

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			family, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(family) == 0 || family["userId"] != owner {
				return ErrFamilyNotFound
			}
			if family["currentJti"] != currentJTI {
				replay = true
				return ErrFamilyReplay
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "currentJti", nextJTI)
				pipe.Expire(ctx, key, ttl)
				pipe.Expire(ctx, userFamiliesKey(userID), ttl)
				if blacklistFor > 0 {
					pipe.Set(ctx, blacklistKey(currentJTI), 1, blacklistFor)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if replay {
			if revokeErr := r.RevokeFamily(ctx, userID, familyID); revokeErr != nil {
				return fmt.Errorf("revoke replayed family: %w", revokeErr)
			}
		}
		return err
	}

	return fmt.Errorf("rotate refresh family: %w", redis.TxFailedErr)
}

func (r *tokenRepository) RevokeFamily(ctx context.Context, userID uint, familyID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, familyKey(familyID))
	pipe.SRem(ctx, userFamiliesKey(userID), familyID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *tokenRepository) RevokeUser(ctx context.Context, userID uint) error {
	familyIDs, err := r.client.SMembers(ctx, userFamiliesKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, familyID := range familyIDs {
		pipe.Del(ctx, familyKey(familyID))
	}
	pipe.Del(ctx, userFamiliesKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

// Blacklist rejects jti until ttl elapses. A non-positive ttl means the token
// has already expired and needs no entry.
func (r *tokenRepository) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, blacklistKey(jti), 1, ttl).Err()
}

func (r *tokenRepository) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
