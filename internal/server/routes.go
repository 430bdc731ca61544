package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lazypower/garden/internal/store"
)

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.EntityFilter{
		NameLike:      q.Get("q"),
		IncludeHidden: q.Get("hidden") == "1" || q.Get("hidden") == "true",
	}
	if k := q.Get("kind"); k != "" {
		kind, err := store.ParseKind(k)
		if err != nil {
			s.writeError(w, err)
			return
		}
		f.Kind = kind
	}
	entities, err := s.db.ListEntities(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntities(entities))
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string             `json:"name"`
		Kind        string             `json:"kind"`
		Details     string             `json:"details"`
		Image       string             `json:"image"`
		ContactData *store.ContactData `json:"contact_data"`
		Birthday    string             `json:"birthday"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ne := store.NewEntity{
		Name: req.Name, Kind: store.Kind(req.Kind), Details: req.Details,
		Image: req.Image, Birthday: req.Birthday,
	}
	if req.ContactData != nil {
		ne.ContactData = *req.ContactData
	}
	id, created, err := s.db.CreateEntity(r.Context(), ne)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"id": id, "created": created})
}

// entity loads the {id} entity or writes a 404.
func (s *Server) entity(w http.ResponseWriter, r *http.Request) (*store.Entity, bool) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	e, err := s.db.GetEntity(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if e == nil {
		s.writeError(w, fmt.Errorf("entity %d: %w", id, store.ErrNotFound))
		return nil, false
	}
	return e, true
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewEntity(*e))
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Name        *string            `json:"name"`
		Details     *string            `json:"details"`
		Image       *string            `json:"image"`
		ContactData *store.ContactData `json:"contact_data"`
		Birthday    *string            `json:"birthday"`
		Kind        *string            `json:"kind"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Kind != nil {
		s.writeError(w, fmt.Errorf("%w: kind cannot be changed", errBadRequest))
		return
	}
	u := store.EntityUpdate{
		Name: req.Name, Details: req.Details, Image: req.Image,
		ContactData: req.ContactData, Birthday: req.Birthday,
	}
	if err := s.db.UpdateEntity(r.Context(), id, u); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetEntity(w, r)
}

func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DeleteEntity(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetHidden(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.SetHidden(r.Context(), id, req.Hidden); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hidden": req.Hidden})
}

func (s *Server) handleSetFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.db.SetFavorite(r.Context(), id, favorite); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"favorite": favorite})
	}
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	entities, err := s.db.ListFavorites(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntities(entities))
}

// handleMerge folds the {id} entity into target_id.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		TargetID int64 `json:"target_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.MergeEntities(r.Context(), id, req.TargetID); err != nil {
		s.writeError(w, err)
		return
	}
	target, err := s.db.GetEntity(r.Context(), req.TargetID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if target == nil {
		s.writeError(w, fmt.Errorf("entity %d: %w", req.TargetID, store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, viewEntity(*target))
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			s.writeError(w, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
	}
	interactions, err := s.db.ListInteractions(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewInteractions(interactions))
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Type  string `json:"type"`
		Notes string `json:"notes"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		s.writeError(w, fmt.Errorf("%w: type required", errBadRequest))
		return
	}
	n, err := s.db.RecordInteraction(r.Context(), id, req.Type, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"recorded": n})
}

func (s *Server) handleUpdateInteraction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Timestamp *int64  `json:"timestamp"`
		Type      *string `json:"type"`
		Notes     *string `json:"notes"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	u := store.InteractionUpdate{Timestamp: req.Timestamp, Type: req.Type, Notes: req.Notes}
	if err := s.db.UpdateInteraction(r.Context(), id, u); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteInteraction(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.DeleteInteraction(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEligibleTypes(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	types, err := s.db.EligibleInteractionTypes(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTypes(types))
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	members, err := s.db.GroupMembers(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntities(members))
}

func (s *Server) handleGroupsOf(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	groups, err := s.db.GroupsOf(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntities(groups))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		MemberID int64 `json:"member_id"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.AddGroupMember(r.Context(), id, req.MemberID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"group_id": id, "member_id": req.MemberID})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	memberID, err := idParam(r, "memberID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.RemoveGroupMember(r.Context(), id, memberID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	photos, err := s.db.ListPhotos(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]photoView, 0, len(photos))
	for _, p := range photos {
		out = append(out, photoView{ID: p.ID, EntityID: p.EntityID, URI: p.URI, Timestamp: p.Timestamp})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		URI string `json:"uri"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.URI) == "" {
		s.writeError(w, fmt.Errorf("%w: uri required", errBadRequest))
		return
	}
	photoID, err := s.db.AddPhoto(r.Context(), id, req.URI)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": photoID})
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.DeletePhoto(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	rem, err := s.db.GetBirthdayReminder(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rem == nil {
		s.writeError(w, fmt.Errorf("birthday reminder for %d: %w", id, store.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, reminderView{
		EntityID: rem.EntityID, Birthday: rem.Birthday, ReminderTime: rem.ReminderTime,
		DaysInAdvance: rem.DaysInAdvance, Enabled: rem.Enabled, NotificationID: rem.NotificationID,
	})
}

func (s *Server) handlePutReminder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Birthday      string `json:"birthday"`
		ReminderTime  string `json:"reminder_time"`
		DaysInAdvance int    `json:"days_in_advance"`
		Enabled       *bool  `json:"enabled"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	err = s.engine.SetBirthdayReminder(r.Context(), store.BirthdayReminder{
		EntityID: id, Birthday: req.Birthday, ReminderTime: req.ReminderTime,
		DaysInAdvance: req.DaysInAdvance, Enabled: enabled,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetReminder(w, r)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.RemoveBirthdayReminder(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
