package preferences

import (
	"context"
	"errors"
)

// ErrFetch обёртка для любых сбоев хранилища настроек (чтение/запись).
var ErrFetch = errors.New("preferences: store request failed")

// DefaultSection раздел каталога, к которому привязаны настройки.
const DefaultSection = "stock"

type GroupPreference struct {
	Favorite bool
	Hidden   bool // hidden ⇒ !favorite, обеспечивается в момент скрытия
}

// MaterialPreference материалы не скрываются, только избранное.
type MaterialPreference struct {
	Favorite bool
}

// Snapshot все настройки пользователя по разделу, читаются одним пакетом.
type Snapshot struct {
	Groups           map[string]GroupPreference
	Materials        map[string]MaterialPreference
	SearchExclusions []string
}

type GroupPatch struct {
	GroupCode string
	Section   string
	Favorite  *bool
	Hidden    *bool
}

type MaterialPatch struct {
	MaterialCode string
	Section      string
	Favorite     bool
}

// Store хранилище настроек; пользователь — непрозрачный идентификатор от вызывающего.
type Store interface {
	Load(ctx context.Context, user, section string) (Snapshot, error)
	PatchGroup(ctx context.Context, user string, p GroupPatch) error
	PatchMaterial(ctx context.Context, user string, p MaterialPatch) error
	ReplaceExclusions(ctx context.Context, user, section string, codes []string) error
}

func boolPtr(b bool) *bool { return &b }
