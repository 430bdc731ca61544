package server

import (
	"fmt"
	"net/http"

	"github.com/lazypower/garden/internal/scoring"
	"github.com/lazypower/garden/internal/store"
)

// Tags, interaction types and decay settings.

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.db.ListTags(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTags(tags))
}

func (s *Server) handleEntityTags(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	tags, err := s.db.EntityTags(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTags(tags))
}

func (s *Server) handleInheritedTags(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids, err := s.db.InheritedTagIDs(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"tag_ids": ids})
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	tag, err := s.db.AddTagToEntity(r.Context(), id, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTags([]store.Tag{*tag})[0])
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	tagID, err := idParam(r, "tagID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.RemoveTagFromEntity(r.Context(), id, tagID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.RenameTag(r.Context(), id, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.DeleteTag(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecountTags(w http.ResponseWriter, r *http.Request) {
	if err := s.db.RecalculateTagCounts(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recounted"})
}

type typeRequest struct {
	Name   string   `json:"name"`
	Icon   string   `json:"icon"`
	Score  *float64 `json:"score"`
	Color  string   `json:"color"`
	Kinds  []string `json:"kinds"`
	TagIDs []int64  `json:"tag_ids"`
}

func (req typeRequest) interactionType() (store.InteractionType, error) {
	t := store.InteractionType{Name: req.Name, Icon: req.Icon, Color: req.Color, Score: 1, TagIDs: req.TagIDs}
	if req.Score != nil {
		if *req.Score < 0 {
			return t, fmt.Errorf("%w: score must not be negative", errBadRequest)
		}
		t.Score = *req.Score
	}
	for _, k := range req.Kinds {
		kind, err := store.ParseKind(k)
		if err != nil {
			return t, err
		}
		t.Kinds = append(t.Kinds, kind)
	}
	return t, nil
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.db.ListInteractionTypes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTypes(types))
}

func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	t, err := req.interactionType()
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.db.CreateInteractionType(r.Context(), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req typeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	t, err := req.interactionType()
	if err != nil {
		s.writeError(w, err)
		return
	}
	t.ID = id
	if err := s.db.UpdateInteractionType(r.Context(), t); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.db.DeleteInteractionType(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsView struct {
	DecayFactor float64 `json:"decay_factor"`
	DecayType   string  `json:"decay_type"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.GetSettings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView{DecayFactor: st.DecayFactor, DecayType: string(st.DecayModel)})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsView
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	st := store.Settings{DecayFactor: req.DecayFactor, DecayModel: scoring.DecayModel(req.DecayType)}
	if err := s.db.UpdateSettings(r.Context(), st); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleRecomputeScores(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.SweepScores(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rescored": n})
}
