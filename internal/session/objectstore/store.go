package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/session"
	"github.com/sqlpilot/sqlpilot/internal/storage"
)

const keyPrefix = "sessions"

// Store writes each session as a JSON document under sessions/<id>.json.
type Store struct {
	objects storage.ObjectStore
}

func NewStore(objects storage.ObjectStore) (*Store, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Store{objects: objects}, nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (session.State, error) {
	key, err := sessionKey(sessionID)
	if err != nil {
		return session.State{}, err
	}
	reader, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return session.State{}, session.ErrNotFound
		}
		return session.State{}, fmt.Errorf("load session: %w", err)
	}
	defer func() { _ = reader.Close() }()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return session.State{}, fmt.Errorf("read session %q: %w", sessionID, err)
	}
	var state session.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return session.State{}, fmt.Errorf("decode session %q: %w", sessionID, err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state session.State) error {
	key, err := sessionKey(state.SessionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", state.SessionID, err)
	}
	opts := storage.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			storage.MetaSessionID: strings.TrimSpace(state.SessionID),
			storage.MetaStatus:    string(state.Status),
		},
	}
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), opts); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if err := storage.ValidatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	return path.Join(keyPrefix, sessionID+".json"), nil
}
