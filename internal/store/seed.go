package store

import (
	"context"
	"fmt"
)

// GeneralContactType is the catch-all interaction type offered to every
// entity, including topics and groups.
const GeneralContactType = "General Contact"

var defaultTags = []TagSpec{
	{"Family", "home-outline", "#D4A373"},
	{"Friends", "happy-outline", "#F28482"},
	{"Work", "briefcase-outline", "#4A6FA5"},
	{"Community", "people-outline", "#84A59D"},
}

// defaultTypes are installed on a fresh database and on upgrade to the
// seeding step. Config files can replace them wholesale later.
var defaultTypes = []TypeSpec{
	{Name: GeneralContactType, Icon: "chatbubble-outline", Score: 1, Color: "#666666"},
	{Name: "Phone Call", Icon: "call-outline", Kinds: []Kind{KindPerson}, Score: 2, Color: "#2A9D8F"},
	{Name: "Text Message", Icon: "chatbox-outline", Kinds: []Kind{KindPerson}, Score: 1, Color: "#8AB17D"},
	{Name: "Video Call", Icon: "videocam-outline", Kinds: []Kind{KindPerson}, Score: 2, Color: "#E9C46A"},
	{Name: "Coffee", Icon: "cafe-outline", Kinds: []Kind{KindPerson}, Score: 3, Color: "#9C6644"},
	{Name: "Meal", Icon: "restaurant-outline", Kinds: []Kind{KindPerson}, Score: 3, Color: "#E07A5F"},
	{Name: "Group Hangout", Icon: "people-outline", Kinds: []Kind{KindGroup}, Score: 3, Color: "#F4A261"},
	{Name: "Research", Icon: "search-outline", Kinds: []Kind{KindTopic}, Score: 1, Color: "#577590"},
	{Name: "Family Dinner", Icon: "home-outline", Tags: []string{"Family"}, Score: 4, Color: "#D4A373"},
	{Name: "Hangout", Icon: "happy-outline", Tags: []string{"Friends"}, Score: 3, Color: "#F28482"},
	{Name: "Meeting", Icon: "briefcase-outline", Tags: []string{"Work"}, Score: 2, Color: "#4A6FA5"},
}

// seedDefaults installs default tags, interaction types and the settings
// row. Safe to run repeatedly: existing rows are matched by name.
func seedDefaults(ctx context.Context, q querier) error {
	tagIDs := make(map[string]int64)
	for _, ts := range defaultTags {
		id, err := upsertDefaultTag(ctx, q, ts)
		if err != nil {
			return err
		}
		tagIDs[ts.Name] = id
	}

	for _, spec := range defaultTypes {
		var n int
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM interaction_types WHERE name = ? COLLATE NOCASE", spec.Name,
		).Scan(&n); err != nil {
			return fmt.Errorf("check default type %q: %w", spec.Name, err)
		}
		if n > 0 {
			continue
		}

		t := InteractionType{
			Name:  spec.Name,
			Icon:  spec.Icon,
			Score: spec.Score,
			Color: spec.Color,
			Kinds: spec.Kinds,
		}
		for _, name := range spec.Tags {
			id := tagIDs[name]
			t.TagIDs = append(t.TagIDs, id)
			t.TagID = &id
		}
		if _, err := insertInteractionType(ctx, q, t); err != nil {
			return fmt.Errorf("seed type %q: %w", spec.Name, err)
		}
	}

	if _, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO settings (id, decay_factor, decay_type) VALUES (1, ?, ?)",
		DefaultSettings.DecayFactor, string(DefaultSettings.DecayModel),
	); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	return nil
}
