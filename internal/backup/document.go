package backup

import (
	"strings"

	"github.com/lazypower/garden/internal/scoring"
	"github.com/lazypower/garden/internal/store"
)

// FormatVersion is the document version written by Export.
const FormatVersion = 1

// Document is the plaintext backup: the full dataset as JSON.
type Document struct {
	Version             int                 `json:"version"`
	Timestamp           int64               `json:"timestamp"`
	Entities            []EntityRecord      `json:"entities"`
	Interactions        []InteractionRecord `json:"interactions"`
	Photos              []PhotoRecord       `json:"photos"`
	Tags                []TagRecord         `json:"tags"`
	EntityTags          []EntityTagRecord   `json:"entityTags"`
	InteractionTypes    []TypeRecord        `json:"interactionTypes"`
	InteractionTypeTags []TypeTagRecord     `json:"interactionTypeTags"`
	GroupMembers        []GroupMemberRecord `json:"groupMembers"`
	Favorites           []FavoriteRecord    `json:"favorites"`
	BirthdayReminders   []ReminderRecord    `json:"birthdayReminders,omitempty"`
	Settings            *SettingsRecord     `json:"settings,omitempty"`
}

type EntityRecord struct {
	ID               int64              `json:"id"`
	Name             string             `json:"name"`
	Type             string             `json:"type"`
	Details          string             `json:"details,omitempty"`
	Image            string             `json:"image,omitempty"`
	ContactData      *store.ContactData `json:"contactData,omitempty"`
	InteractionScore float64            `json:"interactionScore"`
	IsHidden         bool               `json:"isHidden"`
	Birthday         string             `json:"birthday,omitempty"`
	CreatedAt        int64              `json:"createdAt"`
	UpdatedAt        int64              `json:"updatedAt"`
}

type InteractionRecord struct {
	ID                int64  `json:"id"`
	EntityID          int64  `json:"entityId"`
	Timestamp         int64  `json:"timestamp"`
	Type              string `json:"type"`
	InteractionTypeID *int64 `json:"interactionTypeId"`
	Notes             string `json:"notes,omitempty"`
}

// PhotoRecord carries the image bytes inline as base64. Data is empty when
// the file was missing at export time.
type PhotoRecord struct {
	ID        int64  `json:"id"`
	EntityID  int64  `json:"entityId"`
	URI       string `json:"uri"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"`
}

type TagRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"isDefault"`
	Count     int    `json:"count"`
}

type EntityTagRecord struct {
	EntityID int64 `json:"entityId"`
	TagID    int64 `json:"tagId"`
}

type TypeRecord struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Icon  string  `json:"icon"`
	Score float64 `json:"score"`
	Color string  `json:"color"`
	TagID *int64  `json:"tagId"`
	// EntityType is the comma-joined kind restriction, null when unrestricted.
	EntityType *string `json:"entityType"`
}

type TypeTagRecord struct {
	InteractionTypeID int64 `json:"interactionTypeId"`
	TagID             int64 `json:"tagId"`
}

type GroupMemberRecord struct {
	GroupID   int64 `json:"groupId"`
	MemberID  int64 `json:"memberId"`
	CreatedAt int64 `json:"createdAt"`
}

type FavoriteRecord struct {
	EntityID  int64 `json:"entityId"`
	CreatedAt int64 `json:"createdAt"`
}

type ReminderRecord struct {
	EntityID      int64  `json:"entityId"`
	Birthday      string `json:"birthday"`
	ReminderTime  string `json:"reminderTime"`
	DaysInAdvance int    `json:"daysInAdvance"`
	IsEnabled     bool   `json:"isEnabled"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

type SettingsRecord struct {
	DecayFactor float64 `json:"decayFactor"`
	DecayType   string  `json:"decayType"`
}

// Validate checks the version and that there is something to restore.
func (d *Document) Validate() error {
	if d.Version != FormatVersion {
		return ErrUnsupportedVersion
	}
	if len(d.Entities) == 0 {
		return ErrEmptyBackup
	}
	return nil
}

// newDocument converts a store snapshot. Photo data is filled in by the
// exporter.
func newDocument(ds *store.Dataset, timestamp int64) *Document {
	d := &Document{
		Version:             FormatVersion,
		Timestamp:           timestamp,
		Entities:            []EntityRecord{},
		Interactions:        []InteractionRecord{},
		Photos:              []PhotoRecord{},
		Tags:                []TagRecord{},
		EntityTags:          []EntityTagRecord{},
		InteractionTypes:    []TypeRecord{},
		InteractionTypeTags: []TypeTagRecord{},
		GroupMembers:        []GroupMemberRecord{},
		Favorites:           []FavoriteRecord{},
	}

	for _, e := range ds.Entities {
		r := EntityRecord{
			ID: e.ID, Name: e.Name, Type: string(e.Kind), Details: e.Details, Image: e.Image,
			InteractionScore: e.InteractionScore, IsHidden: e.Hidden, Birthday: e.Birthday,
			CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
		}
		if !e.ContactData.Empty() {
			cd := e.ContactData
			r.ContactData = &cd
		}
		d.Entities = append(d.Entities, r)
	}
	for _, i := range ds.Interactions {
		d.Interactions = append(d.Interactions, InteractionRecord{
			ID: i.ID, EntityID: i.EntityID, Timestamp: i.Timestamp, Type: i.Type,
			InteractionTypeID: i.InteractionTypeID, Notes: i.Notes,
		})
	}
	for _, p := range ds.Photos {
		d.Photos = append(d.Photos, PhotoRecord{ID: p.ID, EntityID: p.EntityID, URI: p.URI, Timestamp: p.Timestamp})
	}
	for _, t := range ds.Tags {
		d.Tags = append(d.Tags, TagRecord{
			ID: t.ID, Name: t.Name, Icon: t.Icon, Color: t.Color, IsDefault: t.IsDefault, Count: t.Count,
		})
	}
	for _, et := range ds.EntityTags {
		d.EntityTags = append(d.EntityTags, EntityTagRecord{EntityID: et.EntityID, TagID: et.TagID})
	}
	for _, t := range ds.InteractionTypes {
		r := TypeRecord{ID: t.ID, Name: t.Name, Icon: t.Icon, Score: t.Score, Color: t.Color, TagID: t.TagID}
		if len(t.Kinds) > 0 {
			parts := make([]string, len(t.Kinds))
			for i, k := range t.Kinds {
				parts[i] = string(k)
			}
			joined := strings.Join(parts, ",")
			r.EntityType = &joined
		}
		d.InteractionTypes = append(d.InteractionTypes, r)
	}
	for _, tt := range ds.InteractionTypeTags {
		d.InteractionTypeTags = append(d.InteractionTypeTags, TypeTagRecord{
			InteractionTypeID: tt.InteractionTypeID, TagID: tt.TagID,
		})
	}
	for _, m := range ds.GroupMembers {
		d.GroupMembers = append(d.GroupMembers, GroupMemberRecord{GroupID: m.GroupID, MemberID: m.MemberID, CreatedAt: m.CreatedAt})
	}
	for _, f := range ds.Favorites {
		d.Favorites = append(d.Favorites, FavoriteRecord{EntityID: f.EntityID, CreatedAt: f.CreatedAt})
	}
	for _, r := range ds.BirthdayReminders {
		d.BirthdayReminders = append(d.BirthdayReminders, ReminderRecord{
			EntityID: r.EntityID, Birthday: r.Birthday, ReminderTime: r.ReminderTime,
			DaysInAdvance: r.DaysInAdvance, IsEnabled: r.Enabled, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
	if ds.Settings != nil {
		d.Settings = &SettingsRecord{DecayFactor: ds.Settings.DecayFactor, DecayType: string(ds.Settings.DecayModel)}
	}
	return d
}

// dataset converts the document back for store.Restore. Photo URIs must
// already point at files written by the importer.
func (d *Document) dataset() *store.Dataset {
	ds := &store.Dataset{}
	for _, r := range d.Entities {
		e := store.Entity{
			ID: r.ID, Name: r.Name, Kind: store.Kind(r.Type), Details: r.Details, Image: r.Image,
			InteractionScore: r.InteractionScore, Hidden: r.IsHidden, Birthday: r.Birthday,
			CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		}
		if r.ContactData != nil {
			e.ContactData = *r.ContactData
		}
		ds.Entities = append(ds.Entities, e)
	}
	for _, r := range d.Interactions {
		ds.Interactions = append(ds.Interactions, store.Interaction{
			ID: r.ID, EntityID: r.EntityID, Timestamp: r.Timestamp, Type: r.Type,
			InteractionTypeID: r.InteractionTypeID, Notes: r.Notes,
		})
	}
	for _, r := range d.Photos {
		ds.Photos = append(ds.Photos, store.Photo{ID: r.ID, EntityID: r.EntityID, URI: r.URI, Timestamp: r.Timestamp})
	}
	for _, r := range d.Tags {
		ds.Tags = append(ds.Tags, store.Tag{ID: r.ID, Name: r.Name, Icon: r.Icon, Color: r.Color, IsDefault: r.IsDefault})
	}
	for _, r := range d.EntityTags {
		ds.EntityTags = append(ds.EntityTags, store.EntityTag{EntityID: r.EntityID, TagID: r.TagID})
	}
	for _, r := range d.InteractionTypes {
		t := store.InteractionType{ID: r.ID, Name: r.Name, Icon: r.Icon, Score: r.Score, Color: r.Color, TagID: r.TagID}
		if r.EntityType != nil {
			for _, p := range strings.Split(*r.EntityType, ",") {
				if k, err := store.ParseKind(p); err == nil {
					t.Kinds = append(t.Kinds, k)
				}
			}
		}
		ds.InteractionTypes = append(ds.InteractionTypes, t)
	}
	for _, r := range d.InteractionTypeTags {
		ds.InteractionTypeTags = append(ds.InteractionTypeTags, store.TypeTag{InteractionTypeID: r.InteractionTypeID, TagID: r.TagID})
	}
	for _, r := range d.GroupMembers {
		ds.GroupMembers = append(ds.GroupMembers, store.GroupMember{GroupID: r.GroupID, MemberID: r.MemberID, CreatedAt: r.CreatedAt})
	}
	for _, r := range d.Favorites {
		ds.Favorites = append(ds.Favorites, store.Favorite{EntityID: r.EntityID, CreatedAt: r.CreatedAt})
	}
	for _, r := range d.BirthdayReminders {
		ds.BirthdayReminders = append(ds.BirthdayReminders, store.BirthdayReminder{
			EntityID: r.EntityID, Birthday: r.Birthday, ReminderTime: r.ReminderTime,
			DaysInAdvance: r.DaysInAdvance, Enabled: r.IsEnabled, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
	if d.Settings != nil {
		model, err := scoring.ParseDecayModel(d.Settings.DecayType)
		if err != nil {
			model = scoring.Linear
		}
		ds.Settings = &store.Settings{DecayFactor: d.Settings.DecayFactor, DecayModel: model}
	}
	return ds
}
