package session

import (
	"context"
	"fmt"
)

// sessionImpl 實作 ISession，資料在第一次 Load 時才從儲存層讀取
type sessionImpl struct {
	id    string
	ctx   context.Context
	data  map[string]string
	dirty bool
	store IStore
}

func NewSession(ctx context.Context, id string, store IStore) ISession {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sessionImpl{
		id:    id,
		ctx:   ctx,
		store: store,
	}
}

func (s *sessionImpl) ID() string {
	return s.id
}

func (s *sessionImpl) Load() error {
	const op = "sessionImpl.Load"
	if s.data != nil {
		return nil
	}

	data, err := s.store.Load(s.ctx, s.id)
	if err != nil {
		return fmt.Errorf("%s: failed to load session: %w", op, err)
	}

	s.data = data
	if s.data == nil {
		s.data = make(map[string]string)
	}
	return nil
}

func (s *sessionImpl) Get(key string) string {
	if s.data == nil {
		return ""
	}
	return s.data[key]
}

func (s *sessionImpl) Pop(key string) string {
	value, ok := s.data[key]
	if ok {
		delete(s.data, key)
		s.dirty = true
	}
	return value
}

func (s *sessionImpl) Set(key string, value string) {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	if current, ok := s.data[key]; ok && current == value {
		return
	}
	s.data[key] = value
	s.dirty = true
}

func (s *sessionImpl) Delete(key string) {
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.dirty = true
	}
}

func (s *sessionImpl) Clear() {
	if len(s.data) > 0 {
		s.dirty = true
	}
	s.data = make(map[string]string)
}

func (s *sessionImpl) Dirty() bool {
	return s.dirty
}

// Save 只有在資料被修改過時才寫回儲存層
func (s *sessionImpl) Save() error {
	const op = "sessionImpl.Save"
	if s.data == nil || !s.dirty {
		return nil
	}
	if err := s.store.Save(s.ctx, s.id, s.data); err != nil {
		return fmt.Errorf("%s: failed to save session: %w", op, err)
	}
	s.dirty = false
	return nil
}
