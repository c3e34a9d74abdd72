package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"chatrelay-backend/internal/models"
)

// TTLs for the three cache namespaces.
const (
	HistoryTTL  = 300 * time.Second
	ContextTTL  = 3600 * time.Second
	ResponseTTL = 1800 * time.Second
	SessionTTL  = 86400 * time.Second
)

// Cache is a fail-soft layer over Redis. Every operation logs and returns
// an absent/false result on store failure: callers must treat the cache as
// optional acceleration, never as the source of truth.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Set stores a value under key. Non-string values are JSON-serialized.
// A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	var payload string
	switch v := value.(type) {
	case string:
		payload = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			log.Printf("cache: failed to serialize value for %s: %v", key, err)
			return false
		}
		payload = string(data)
	}

	if err := c.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		log.Printf("cache: set %s failed: %v", key, err)
		return false
	}
	return true
}

// Get returns the raw stored string. The second return is false on a miss
// or on store failure.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("cache: get %s failed: %v", key, err)
		return "", false
	}
	return val, true
}

// GetJSON deserializes the stored value into dest. Returns false on miss,
// store failure, or if the payload is not valid JSON for dest (plain-text
// payloads belong to Get).
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Printf("cache: failed to deserialize %s: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		log.Printf("cache: delete %s failed: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("cache: exists %s failed: %v", key, err)
		return false
	}
	return n == 1
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		log.Printf("cache: expire %s failed: %v", key, err)
		return false
	}
	return true
}

// Keys returns all keys matching pattern using SCAN, not KEYS, so it is
// safe against a shared store.
func (c *Cache) Keys(ctx context.Context, pattern string) []string {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan %s failed: %v", pattern, err)
		return nil
	}
	return keys
}

// ──── Domain helpers ────

func historyKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:history", conversationID)
}

func contextKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:context", conversationID)
}

func sessionKey(userID string) string {
	return fmt.Sprintf("user:%s:session", userID)
}

func responseKey(query string) string {
	return fmt.Sprintf("ai:response:%s", HashQuery(query))
}

// HashQuery maps a query string to a deterministic cache key component.
// Byte-identical input yields the identical key; case and whitespace are
// significant.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// ConversationHistory returns the cached role/content history, if present.
func (c *Cache) ConversationHistory(ctx context.Context, conversationID string) ([]models.ChatTurn, bool) {
	var history []models.ChatTurn
	if !c.GetJSON(ctx, historyKey(conversationID), &history) {
		return nil, false
	}
	return history, true
}

func (c *Cache) SetConversationHistory(ctx context.Context, conversationID string, history []models.ChatTurn) bool {
	return c.Set(ctx, historyKey(conversationID), history, HistoryTTL)
}

// AppendToHistory adds a turn to the cached history and resets its TTL.
// A missing history starts fresh from the appended turn.
func (c *Cache) AppendToHistory(ctx context.Context, conversationID, role, content string) []models.ChatTurn {
	history, _ := c.ConversationHistory(ctx, conversationID)
	history = append(history, models.ChatTurn{Role: role, Content: content})
	c.SetConversationHistory(ctx, conversationID, history)
	return history
}

func (c *Cache) ConversationContext(ctx context.Context, conversationID string) (*models.ConversationContext, bool) {
	var convCtx models.ConversationContext
	if !c.GetJSON(ctx, contextKey(conversationID), &convCtx) {
		return nil, false
	}
	return &convCtx, true
}

func (c *Cache) SetConversationContext(ctx context.Context, conversationID string, convCtx *models.ConversationContext) bool {
	return c.Set(ctx, contextKey(conversationID), convCtx, ContextTTL)
}

// CachedResponse returns a memoized AI reply for the exact query text.
// Memoization is keyed by content hash and intentionally shared across
// conversations.
func (c *Cache) CachedResponse(ctx context.Context, query string) (string, bool) {
	return c.Get(ctx, responseKey(query))
}

func (c *Cache) CacheResponse(ctx context.Context, query, response string) bool {
	return c.Set(ctx, responseKey(query), response, ResponseTTL)
}

func (c *Cache) UserSession(ctx context.Context, userID string, dest interface{}) bool {
	return c.GetJSON(ctx, sessionKey(userID), dest)
}

func (c *Cache) SetUserSession(ctx context.Context, userID string, data interface{}) bool {
	return c.Set(ctx, sessionKey(userID), data, SessionTTL)
}
