package preferences

import (
	"context"
	"fmt"
	"sync"
)

// Overlay локальное зеркало настроек. Меняется оптимистично: сначала локально,
// потом запись в хранилище. У каждого ключа растущая версия записи.
type Overlay struct {
	mu         sync.Mutex
	user       string
	section    string
	groups     map[string]GroupPreference
	materials  map[string]MaterialPreference
	exclusions map[string]bool
	versions   map[string]uint64
	clock      uint64
}

func NewOverlay(user, section string) *Overlay {
	if section == "" {
		section = DefaultSection
	}
	o := &Overlay{user: user, section: section}
	o.Reset(Snapshot{})
	return o
}

func (o *Overlay) User() string    { return o.user }
func (o *Overlay) Section() string { return o.section }

// Reset заменяет состояние целиком (после пакетного чтения).
func (o *Overlay) Reset(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.groups = make(map[string]GroupPreference, len(s.Groups))
	for k, v := range s.Groups {
		if v.Hidden {
			v.Favorite = false
		}
		o.groups[k] = v
	}
	o.materials = make(map[string]MaterialPreference, len(s.Materials))
	for k, v := range s.Materials {
		o.materials[k] = v
	}
	o.exclusions = make(map[string]bool, len(s.SearchExclusions))
	for _, c := range s.SearchExclusions {
		o.exclusions[c] = true
	}
	o.versions = make(map[string]uint64)
}

// Load одно пакетное чтение при активации просмотра.
func (o *Overlay) Load(ctx context.Context, store Store) error {
	s, err := store.Load(ctx, o.user, o.section)
	if err != nil {
		return err
	}
	o.Reset(s)
	return nil
}

func (o *Overlay) IsHiddenGroup(code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.groups[code].Hidden
}

func (o *Overlay) IsFavoriteGroup(code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.groups[code].Favorite
}

func (o *Overlay) IsFavoriteMaterial(code string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.materials[code].Favorite
}

func (o *Overlay) Group(code string) GroupPreference {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.groups[code]
}

// SearchExclusions копия множества исключённых верхних групп.
func (o *Overlay) SearchExclusions() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]bool, len(o.exclusions))
	for k := range o.exclusions {
		out[k] = true
	}
	return out
}

func (o *Overlay) ExclusionList() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.exclusions))
	for k := range o.exclusions {
		out = append(out, k)
	}
	return out
}

// Write квитанция оптимистичной записи: что отправить и как откатить.
type Write struct {
	key        string
	version    uint64
	undo       func()
	Group      *GroupPatch
	Material   *MaterialPatch
	Exclusions []string
}

func (w Write) Key() string { return w.key }

func (o *Overlay) stamp(key string, undo func()) Write {
	o.clock++
	o.versions[key] = o.clock
	return Write{key: key, version: o.clock, undo: undo}
}

func (o *Overlay) SetGroupFavorite(code string, favorite bool) Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, had := o.groups[code]
	next := prev
	next.Favorite = favorite
	o.groups[code] = next
	w := o.stamp("g:"+code, func() { o.restoreGroup(code, prev, had) })
	w.Group = &GroupPatch{GroupCode: code, Section: o.section, Favorite: boolPtr(favorite)}
	return w
}

// SetGroupHidden скрытие одной записью сбрасывает избранное (один запрос, не два).
func (o *Overlay) SetGroupHidden(code string, hidden bool) Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, had := o.groups[code]
	next := prev
	next.Hidden = hidden
	patch := &GroupPatch{GroupCode: code, Section: o.section, Hidden: boolPtr(hidden)}
	if hidden {
		next.Favorite = false
		patch.Favorite = boolPtr(false)
	}
	o.groups[code] = next
	w := o.stamp("g:"+code, func() { o.restoreGroup(code, prev, had) })
	w.Group = patch
	return w
}

func (o *Overlay) SetMaterialFavorite(code string, favorite bool) Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, had := o.materials[code]
	o.materials[code] = MaterialPreference{Favorite: favorite}
	w := o.stamp("m:"+code, func() {
		if had {
			o.materials[code] = prev
		} else {
			delete(o.materials, code)
		}
	})
	w.Material = &MaterialPatch{MaterialCode: code, Section: o.section, Favorite: favorite}
	return w
}

// SetExclusions полная замена набора исключений.
func (o *Overlay) SetExclusions(codes []string) Write {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.exclusions
	next := make(map[string]bool, len(codes))
	list := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || next[c] {
			continue
		}
		next[c] = true
		list = append(list, c)
	}
	o.exclusions = next
	w := o.stamp("x", func() { o.exclusions = prev })
	w.Exclusions = list
	return w
}

func (o *Overlay) restoreGroup(code string, prev GroupPreference, had bool) {
	if had {
		o.groups[code] = prev
		return
	}
	delete(o.groups, code)
}

// Send отправляет квитанцию в хранилище.
func (o *Overlay) Send(ctx context.Context, store Store, w Write) error {
	var err error
	switch {
	case w.Group != nil:
		err = store.PatchGroup(ctx, o.user, *w.Group)
	case w.Material != nil:
		err = store.PatchMaterial(ctx, o.user, *w.Material)
	default:
		err = store.ReplaceExclusions(ctx, o.user, o.section, w.Exclusions)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFetch, w.key, err)
	}
	return nil
}

// Fail откатывает неудавшуюся запись, только если её не перекрыла более новая.
// Возвращает true, если откат произошёл.
func (o *Overlay) Fail(w Write) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.versions[w.key] != w.version || w.undo == nil {
		return false
	}
	w.undo()
	o.clock++
	o.versions[w.key] = o.clock
	return true
}

// Commit синхронный вариант: отправить и при ошибке откатить.
func (o *Overlay) Commit(ctx context.Context, store Store, w Write) (rolledBack bool, err error) {
	if err = o.Send(ctx, store, w); err != nil {
		return o.Fail(w), err
	}
	return false, nil
}
