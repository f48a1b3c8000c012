package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chatv2/chatv2-server/domain"
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
)

// PebbleSessionRepository persists Session records in an embedded pebble
// LSM-tree database, keyed by session ID, with secondary indexes (token ->
// session ID, user ID -> session ID set) maintained as separate key
// prefixes within the same store.
type PebbleSessionRepository struct {
	db *pebble.DB
}

const (
	sessionKeyPrefix    = "session/"
	tokenIndexPrefix    = "token/"
	userIndexPrefix     = "user/"
)

// OpenPebbleSessionRepository opens (creating if absent) a pebble database
// at dir for session storage.
func OpenPebbleSessionRepository(dir string) (*PebbleSessionRepository, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleSessionRepository{db: db}, nil
}

// Close releases the underlying pebble database handle.
func (r *PebbleSessionRepository) Close() error {
	return r.db.Close()
}

func sessionKey(id uuid.UUID) []byte   { return []byte(sessionKeyPrefix + id.String()) }
func tokenKey(token string) []byte     { return []byte(tokenIndexPrefix + token) }
func userIndexKey(userID, sessionID uuid.UUID) []byte {
	return []byte(userIndexPrefix + userID.String() + "/" + sessionID.String())
}

func (r *PebbleSessionRepository) Save(ctx context.Context, s domain.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	batch := r.db.NewBatch()
	defer batch.Close()
	if old, err := r.get(s.SessionID); err == nil && old.Token != s.Token {
		if err := batch.Delete(tokenKey(old.Token), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(sessionKey(s.SessionID), b, nil); err != nil {
		return err
	}
	if err := batch.Set(tokenKey(s.Token), []byte(s.SessionID.String()), nil); err != nil {
		return err
	}
	if err := batch.Set(userIndexKey(s.UserID, s.SessionID), nil, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (r *PebbleSessionRepository) get(id uuid.UUID) (domain.Session, error) {
	v, closer, err := r.db.Get(sessionKey(id))
	if err == pebble.ErrNotFound {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	defer closer.Close()
	var s domain.Session
	if err := json.Unmarshal(v, &s); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (r *PebbleSessionRepository) FindByToken(ctx context.Context, token string) (domain.Session, error) {
	v, closer, err := r.db.Get(tokenKey(token))
	if err == pebble.ErrNotFound {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	idStr := string(v)
	closer.Close()
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.Session{}, err
	}
	return r.get(id)
}

func (r *PebbleSessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	prefix := []byte(userIndexPrefix + userID.String() + "/")
	iter, err := r.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []domain.Session
	for iter.First(); iter.Valid(); iter.Next() {
		idStr := string(iter.Key()[len(prefix):])
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		s, err := r.get(id)
		if err == nil {
			out = append(out, s)
		}
	}
	return out, iter.Error()
}

func (r *PebbleSessionRepository) FindExpired(ctx context.Context, before time.Time) ([]domain.Session, error) {
	prefix := []byte(sessionKeyPrefix)
	iter, err := r.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []domain.Session
	for iter.First(); iter.Valid(); iter.Next() {
		var s domain.Session
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		if s.ExpiresAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, iter.Error()
}

func (r *PebbleSessionRepository) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(sessionKey(sessionID), nil); err != nil {
		return err
	}
	if err := batch.Delete(tokenKey(s.Token), nil); err != nil {
		return err
	}
	if err := batch.Delete(userIndexKey(s.UserID, sessionID), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// prefixUpperBound returns the smallest key that is lexicographically
// greater than every key sharing prefix, used to bound a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
