package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/garden/internal/store"
)

// Request and response plumbing shared by the handlers.

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps store errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrInvalidKind),
		errors.Is(err, store.ErrKindMismatch),
		errors.Is(err, store.ErrNotGroup),
		errors.Is(err, store.ErrSelfReference),
		errors.Is(err, store.ErrEmptyName),
		errors.Is(err, store.ErrInvalidBirthday),
		errors.Is(err, store.ErrInvalidReminderTime),
		errors.Is(err, store.ErrInvalidSettings):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Sugar().Errorw("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

type entityView struct {
	ID               int64              `json:"id"`
	Name             string             `json:"name"`
	Kind             store.Kind         `json:"kind"`
	Details          string             `json:"details,omitempty"`
	Image            string             `json:"image,omitempty"`
	ContactData      *store.ContactData `json:"contact_data,omitempty"`
	InteractionScore float64            `json:"interaction_score"`
	Hidden           bool               `json:"hidden"`
	Birthday         string             `json:"birthday,omitempty"`
	CreatedAt        int64              `json:"created_at"`
	UpdatedAt        int64              `json:"updated_at"`
}

func viewEntity(e store.Entity) entityView {
	v := entityView{
		ID: e.ID, Name: e.Name, Kind: e.Kind, Details: e.Details, Image: e.Image,
		InteractionScore: e.InteractionScore, Hidden: e.Hidden, Birthday: e.Birthday,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
	if !e.ContactData.Empty() {
		cd := e.ContactData
		v.ContactData = &cd
	}
	return v
}

func viewEntities(es []store.Entity) []entityView {
	out := make([]entityView, 0, len(es))
	for _, e := range es {
		out = append(out, viewEntity(e))
	}
	return out
}

type interactionView struct {
	ID                int64  `json:"id"`
	EntityID          int64  `json:"entity_id"`
	Timestamp         int64  `json:"timestamp"`
	Type              string `json:"type"`
	InteractionTypeID *int64 `json:"interaction_type_id"`
	Notes             string `json:"notes,omitempty"`
}

func viewInteractions(is []store.Interaction) []interactionView {
	out := make([]interactionView, 0, len(is))
	for _, i := range is {
		out = append(out, interactionView{
			ID: i.ID, EntityID: i.EntityID, Timestamp: i.Timestamp, Type: i.Type,
			InteractionTypeID: i.InteractionTypeID, Notes: i.Notes,
		})
	}
	return out
}

type typeView struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Icon   string       `json:"icon"`
	Score  float64      `json:"score"`
	Color  string       `json:"color"`
	Kinds  []store.Kind `json:"kinds"`
	TagIDs []int64      `json:"tag_ids"`
}

func viewTypes(ts []store.InteractionType) []typeView {
	out := make([]typeView, 0, len(ts))
	for _, t := range ts {
		tagIDs := append([]int64{}, t.TagIDs...)
		if t.TagID != nil && !containsID(tagIDs, *t.TagID) {
			tagIDs = append(tagIDs, *t.TagID)
		}
		kinds := t.Kinds
		if kinds == nil {
			kinds = []store.Kind{}
		}
		out = append(out, typeView{
			ID: t.ID, Name: t.Name, Icon: t.Icon, Score: t.Score, Color: t.Color,
			Kinds: kinds, TagIDs: tagIDs,
		})
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type tagView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	IsDefault bool   `json:"is_default"`
	Count     int    `json:"count"`
}

func viewTags(ts []store.Tag) []tagView {
	out := make([]tagView, 0, len(ts))
	for _, t := range ts {
		out = append(out, tagView{ID: t.ID, Name: t.Name, Icon: t.Icon, Color: t.Color, IsDefault: t.IsDefault, Count: t.Count})
	}
	return out
}

type photoView struct {
	ID        int64  `json:"id"`
	EntityID  int64  `json:"entity_id"`
	URI       string `json:"uri"`
	Timestamp int64  `json:"timestamp"`
}

type reminderView struct {
	EntityID       int64  `json:"entity_id"`
	Birthday       string `json:"birthday"`
	ReminderTime   string `json:"reminder_time"`
	DaysInAdvance  int    `json:"days_in_advance"`
	Enabled        bool   `json:"enabled"`
	NotificationID string `json:"notification_id,omitempty"`
}
