package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/kenku-bot/crowevents/internal/db"
)

// CachedNames: UserResolver поверх кэша имён, для случаев без платформы
// (CLI, HTTP). Имя должно однозначно указывать на одного пользователя.
type CachedNames struct {
	m *Manager
}

func (m *Manager) CachedNames() CachedNames { return CachedNames{m: m} }

var errNoSuchName = errors.New("name is not in the cache")

func (c CachedNames) ResolveUser(ctx context.Context, _ int64, name string) (User, error) {
	ids, err := db.FindSnowflakesByName(ctx, c.m.db, name)
	if err != nil {
		return User{}, err
	}
	switch len(ids) {
	case 0:
		return User{}, fmt.Errorf("%q: %w", name, errNoSuchName)
	case 1:
		return User{ID: ids[0], Name: name}, nil
	default:
		return User{}, fmt.Errorf("%q matches %d users", name, len(ids))
	}
}

func (c CachedNames) LookupUser(ctx context.Context, _ int64, userID int64) (User, error) {
	s, err := db.GetSnowflake(ctx, c.m.db, userID)
	if err != nil {
		return User{}, err
	}
	if s == nil || s.Name == "" {
		return User{}, fmt.Errorf("user %d: %w", userID, errNoSuchName)
	}
	return User{ID: s.ID, Name: s.Name}, nil
}
