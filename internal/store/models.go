package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidKind   = errors.New("invalid entity kind")
	ErrKindMismatch  = errors.New("entity kinds differ")
	ErrNotGroup      = errors.New("entity is not a group")
	ErrSelfReference = errors.New("entity cannot reference itself")
	ErrEmptyName     = errors.New("name is required")
)

// Kind is the immutable category of an entity.
type Kind string

const (
	KindPerson Kind = "person"
	KindGroup  Kind = "group"
	KindTopic  Kind = "topic"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPerson, KindGroup, KindTopic:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Entity is a person, group or topic tracked by the garden.
type Entity struct {
	ID               int64
	Name             string
	Kind             Kind
	Details          string
	Image            string
	ContactData      ContactData
	InteractionScore float64
	Hidden           bool
	Birthday         string
	CreatedAt        int64
	UpdatedAt        int64
}

// Interaction is one timestamped event recorded against an entity.
type Interaction struct {
	ID                int64
	EntityID          int64
	Timestamp         int64
	Type              string
	InteractionTypeID *int64
	Notes             string
}

// InteractionType describes a kind of interaction and its score weight.
type InteractionType struct {
	ID    int64
	Name  string
	Icon  string
	Score float64
	Color string
	// TagID is the legacy single-tag link, superseded by TagIDs.
	TagID *int64
	// Kinds restricts the type to entities of these kinds. Empty means any.
	Kinds  []Kind
	TagIDs []int64
}

// Global reports whether the type applies to every entity.
func (t InteractionType) Global() bool {
	return t.TagID == nil && len(t.TagIDs) == 0 && len(t.Kinds) == 0
}

// Tag is a user-defined label. Count mirrors the number of entity links.
type Tag struct {
	ID        int64
	Name      string
	Icon      string
	Color     string
	IsDefault bool
	Count     int
}

// GroupMember links a member entity to a group entity.
type GroupMember struct {
	GroupID   int64
	MemberID  int64
	CreatedAt int64
}

// Favorite marks an entity as pinned.
type Favorite struct {
	EntityID  int64
	CreatedAt int64
}

// Photo is an image stored on disk and attached to an entity.
type Photo struct {
	ID        int64
	EntityID  int64
	URI       string
	Timestamp int64
}

func encodeKinds(kinds []Kind) any {
	if len(kinds) == 0 {
		return nil
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func decodeKinds(s string) []Kind {
	if s == "" {
		return nil
	}
	var kinds []Kind
	for _, p := range strings.Split(s, ",") {
		if k, err := ParseKind(p); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}
