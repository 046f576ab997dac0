// Package cache puts a redis read-through layer in front of the quiz catalog.
// Quiz content is effectively immutable between publishes, so entries live
// for a fixed TTL and are dropped explicitly when content is re-published.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const DefaultTTL = 10 * time.Minute

// Catalog serves FindQuiz and FindQuestion from redis, loading misses from
// the wrapped catalog. Redis failures degrade to direct reads.
type Catalog struct {
	inner  quiz.Catalog
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewCatalog(inner quiz.Catalog, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{inner: inner, rdb: rdb, ttl: ttl, prefix: "quiz-catalog:", log: log}
}

var _ quiz.Catalog = (*Catalog)(nil)

func (c *Catalog) quizKey(id string) string     { return c.prefix + "quiz:" + id }
func (c *Catalog) questionKey(id string) string { return c.prefix + "question:" + id }
func (c *Catalog) listKey() string              { return c.prefix + "quizzes" }

func (c *Catalog) FindQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	var q quiz.Quiz
	err := cacheOrLoad(ctx, c, c.quizKey(quizID), &q, func() (quiz.Quiz, error) {
		return c.inner.FindQuiz(ctx, quizID)
	})
	return q, err
}

func (c *Catalog) FindQuestion(ctx context.Context, questionID string) (quiz.Question, error) {
	var q quiz.Question
	err := cacheOrLoad(ctx, c, c.questionKey(questionID), &q, func() (quiz.Question, error) {
		return c.inner.FindQuestion(ctx, questionID)
	})
	return q, err
}

func (c *Catalog) ListQuizzes(ctx context.Context) ([]quiz.Quiz, error) {
	var qs []quiz.Quiz
	err := cacheOrLoad(ctx, c, c.listKey(), &qs, func() ([]quiz.Quiz, error) {
		return c.inner.ListQuizzes(ctx)
	})
	return qs, err
}

// Invalidate drops the cached quiz, the quiz listing and any of the given
// question ids.
func (c *Catalog) Invalidate(ctx context.Context, quizID string, questionIDs ...string) error {
	keys := []string{c.quizKey(quizID), c.listKey()}
	for _, id := range questionIDs {
		keys = append(keys, c.questionKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate quiz %s: %w", quizID, err)
	}
	return nil
}

// cacheOrLoad fills dest from key, or from load on a miss and then stores
// the result. Load errors (including not found) are never cached.
func cacheOrLoad[T any](ctx context.Context, c *Catalog, key string, dest *T, load func() (T, error)) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		jerr := json.Unmarshal(raw, dest)
		if jerr == nil {
			return nil
		}
		c.log.Warn("catalog cache entry unreadable", "key", key, "error", jerr)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("catalog cache read failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return err
	}
	*dest = v
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("catalog cache encode failed", "key", key, "error", err)
		return nil
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", "key", key, "error", err)
	}
	return nil
}
