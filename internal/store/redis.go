package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/sheetify/internal/session"
	"github.com/local/sheetify/internal/sheet"
)

// SessionStore keeps progress records and finished sheets in Redis under
// session-scoped keys, each with a TTL.
type SessionStore struct {
	client      *redis.Client
	progressTTL time.Duration
}

func NewSessionStore(redisURL string, progressTTL time.Duration) (*SessionStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &SessionStore{client: c, progressTTL: progressTTL}, nil
}

func (s *SessionStore) Close() error { return s.client.Close() }

func progressKey(sessionID string) string { return sessionID + "/progress" }
func sheetKey(sessionID string) string    { return sessionID + "/sheet" }

// SetProgress overwrites the session's progress record.
func (s *SessionStore) SetProgress(ctx context.Context, sessionID string, p session.Progress) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, progressKey(sessionID), b, s.progressTTL).Err()
}

// GetProgress reads the session's progress record; the second return value is
// false when the session is unknown or expired.
func (s *SessionStore) GetProgress(ctx context.Context, sessionID string) (session.Progress, bool, error) {
	raw, err := s.client.Get(ctx, progressKey(sessionID)).Result()
	if err == redis.Nil {
		return session.Progress{}, false, nil
	}
	if err != nil {
		return session.Progress{}, false, err
	}
	var p session.Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return session.Progress{}, false, fmt.Errorf("corrupt progress record: %w", err)
	}
	return p, true, nil
}

// SetSheet persists the finished (possibly partial) sheet file under the
// session with the given TTL.
func (s *SessionStore) SetSheet(ctx context.Context, sessionID string, f sheet.File, ttl time.Duration) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sheetKey(sessionID), b, ttl).Err()
}

func (s *SessionStore) GetSheet(ctx context.Context, sessionID string) (sheet.File, bool, error) {
	return s.getFile(ctx, sheetKey(sessionID))
}

// SetSheetifyResult stores a one-shot sheetify result under its own sheet id.
func (s *SessionStore) SetSheetifyResult(ctx context.Context, sheetID string, f sheet.File, ttl time.Duration) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sheetID, b, ttl).Err()
}

func (s *SessionStore) GetSheetifyResult(ctx context.Context, sheetID string) (sheet.File, bool, error) {
	return s.getFile(ctx, sheetID)
}

func (s *SessionStore) getFile(ctx context.Context, key string) (sheet.File, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return sheet.File{}, false, nil
	}
	if err != nil {
		return sheet.File{}, false, err
	}
	var f sheet.File
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return sheet.File{}, false, fmt.Errorf("corrupt sheet file: %w", err)
	}
	return f, true, nil
}
