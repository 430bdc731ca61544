package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// EligibleInteractionTypes returns the interaction types that may be logged
// against an entity, ordered by id.
//
// People see global types, types restricted to their kind, and types linked
// to one of their tags. Topics see the general contact type, topic types and
// types linked to their tags. Groups see the union of what their non-group
// members see, the general contact type, and the types their own kind and
// tags allow. Nested groups are not descended into.
func (db *DB) EligibleInteractionTypes(ctx context.Context, entityID int64) ([]InteractionType, error) {
	if !db.Ready() {
		return nil, nil
	}

	var kind string
	err := db.QueryRowContext(ctx, "SELECT type FROM entities WHERE id = ?", entityID).Scan(&kind)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity kind: %w", err)
	}

	types, err := loadInteractionTypes(ctx, db)
	if err != nil {
		return nil, err
	}
	tags, err := entityTagSet(ctx, db, entityID)
	if err != nil {
		return nil, err
	}

	picked := make(map[int64]bool)
	pick := func(match func(InteractionType) bool) {
		for _, t := range types {
			if match(t) {
				picked[t.ID] = true
			}
		}
	}

	switch Kind(kind) {
	case KindPerson:
		pick(func(t InteractionType) bool { return personEligible(t, KindPerson, tags) })
	case KindTopic:
		pick(func(t InteractionType) bool { return topicEligible(t, tags) })
	case KindGroup:
		members, err := db.nonGroupMembers(ctx, entityID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			memberTags, err := entityTagSet(ctx, db, m.id)
			if err != nil {
				return nil, err
			}
			if m.kind == KindTopic {
				pick(func(t InteractionType) bool { return topicEligible(t, memberTags) })
				continue
			}
			pick(func(t InteractionType) bool { return personEligible(t, m.kind, memberTags) })
		}
		pick(func(t InteractionType) bool {
			return isGeneralContact(t) || hasKind(t.Kinds, KindGroup) || linkedToAny(t, tags)
		})
	}

	var out []InteractionType
	for _, t := range types {
		if picked[t.ID] {
			out = append(out, t)
		}
	}
	sortTypes(out)
	return out, nil
}

func personEligible(t InteractionType, kind Kind, tags map[int64]bool) bool {
	return t.Global() || hasKind(t.Kinds, kind) || linkedToAny(t, tags)
}

func topicEligible(t InteractionType, tags map[int64]bool) bool {
	return isGeneralContact(t) || hasKind(t.Kinds, KindTopic) || linkedToAny(t, tags)
}

func linkedToAny(t InteractionType, tags map[int64]bool) bool {
	if t.TagID != nil && tags[*t.TagID] {
		return true
	}
	for _, id := range t.TagIDs {
		if tags[id] {
			return true
		}
	}
	return false
}

func isGeneralContact(t InteractionType) bool {
	return strings.EqualFold(t.Name, GeneralContactType)
}

func entityTagSet(ctx context.Context, q querier, entityID int64) (map[int64]bool, error) {
	ids, err := queryIDs(ctx, q, "SELECT tag_id FROM entity_tags WHERE entity_id = ?", entityID)
	if err != nil {
		return nil, fmt.Errorf("list entity tags: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

type memberRef struct {
	id   int64
	kind Kind
}

func (db *DB) nonGroupMembers(ctx context.Context, groupID int64) ([]memberRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.id, e.type FROM group_members gm JOIN entities e ON e.id = gm.member_id
		WHERE gm.group_id = ? AND e.type != 'group'
		ORDER BY e.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var out []memberRef
	for rows.Next() {
		var (
			m    memberRef
			kind string
		)
		if err := rows.Scan(&m.id, &kind); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		m.kind = Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// InheritedTagIDs returns tags an entity picks up through group membership:
// a group inherits its members' tags, a person inherits the tags of the
// groups it belongs to, and a topic inherits nothing. Ids are sorted.
func (db *DB) InheritedTagIDs(ctx context.Context, entityID int64) ([]int64, error) {
	if !db.Ready() {
		return nil, nil
	}

	var kind string
	err := db.QueryRowContext(ctx, "SELECT type FROM entities WHERE id = ?", entityID).Scan(&kind)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity kind: %w", err)
	}

	var query string
	switch Kind(kind) {
	case KindGroup:
		query = `SELECT DISTINCT et.tag_id FROM group_members gm
			JOIN entity_tags et ON et.entity_id = gm.member_id
			WHERE gm.group_id = ?`
	case KindPerson:
		query = `SELECT DISTINCT et.tag_id FROM group_members gm
			JOIN entity_tags et ON et.entity_id = gm.group_id
			WHERE gm.member_id = ?`
	default:
		return nil, nil
	}
	ids, err := queryIDs(ctx, db, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("inherited tags: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
