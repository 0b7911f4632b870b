package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/klubi/rstore/internal/store"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ErrorResponse is the JSON envelope of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeStoreError maps a store error to its HTTP status.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	class := store.Classify(err)
	status := statusFor(class)
	if status == http.StatusInternalServerError {
		s.logger.Error("store operation failed", zap.Error(err))
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Class: class.String()})
}

func statusFor(c store.Class) int {
	switch c {
	case store.ClassValidation, store.ClassAssociation:
		return http.StatusUnprocessableEntity
	case store.ClassConflict:
		return http.StatusConflict
	case store.ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// resourceType resolves the {type} path variable, writing a 404 if the type
// is not configured.
func (s *Server) resourceType(w http.ResponseWriter, r *http.Request) (*store.ResourceType, bool) {
	name := mux.Vars(r)["type"]
	rt, ok := s.types[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource type %q", name))
		return nil, false
	}
	return rt, true
}

func (s *Server) decodeResource(w http.ResponseWriter, r *http.Request) (store.Resource, bool) {
	var res store.Resource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return nil, false
	}
	if res == nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: expected a JSON object")
		return nil, false
	}
	return res, true
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Resource types
// ---------------------------------------------------------------------------

// TypeInfo describes a configured resource type.
type TypeInfo struct {
	Name     string   `json:"name"`
	Required []string `json:"required,omitempty"`
	Indexes  []string `json:"indexes,omitempty"`
	Sets     []string `json:"sets,omitempty"`
	Primary  string   `json:"primary"`
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	infos := make([]TypeInfo, 0, len(s.types))
	for _, rt := range s.types {
		infos = append(infos, TypeInfo{
			Name:     rt.Name,
			Required: rt.Required,
			Indexes:  rt.Indexes,
			Sets:     rt.Sets,
			Primary:  rt.Primary,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	s.writeJSON(w, http.StatusOK, infos)
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	list, err := s.store.List(r.Context(), rt)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	res, ok := s.decodeResource(w, r)
	if !ok {
		return
	}

	created, err := s.store.Create(r.Context(), rt, res)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("created resource", zap.String("type", rt.Name), zap.String("id", created.UUID()))
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	res, err := s.store.Get(r.Context(), rt, mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	res, ok := s.decodeResource(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if body := res.UUID(); body != "" && body != id {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("uuid %q in body does not match %q in path", body, id))
		return
	}
	res[store.UUIDField] = id

	updated, err := s.store.Update(r.Context(), rt, res)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("updated resource", zap.String("type", rt.Name), zap.String("id", id))
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	deleted, err := s.store.Delete(r.Context(), rt, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("deleted resource", zap.String("type", rt.Name), zap.String("id", id))
	s.writeJSON(w, http.StatusOK, deleted)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	res, err := s.store.LookupByIndex(r.Context(), rt, vars["field"], vars["value"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleResolveComposite resolves /{type}/composite/{name}?v=a&v=b.
func (s *Server) handleResolveComposite(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resourceType(w, r)
	if !ok {
		return
	}
	res, err := s.store.ResolveComposite(r.Context(), rt, mux.Vars(r)["name"], r.URL.Query()["v"]...)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSet(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBySet(r.Context(), mux.Vars(r)["set"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// ---------------------------------------------------------------------------
// Watch
// ---------------------------------------------------------------------------

// handleWatch streams store events as newline-delimited JSON until the
// client disconnects. ?type= restricts the stream to one resource type.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	resourceType := r.URL.Query().Get("type")
	if resourceType != "" {
		if _, ok := s.types[resourceType]; !ok {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource type %q", resourceType))
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.store.Watch(resourceType)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(evt); err != nil {
				s.logger.Debug("watch client gone", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// ApplyRequest is the body of POST /apply.
type ApplyRequest struct {
	Type     string         `json:"type"`
	Resource store.Resource `json:"resource"`
}

// handleApply creates the resource, or updates the existing one when the
// body carries a known uuid or an index value that is already claimed.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	rt, ok := s.types[req.Type]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown resource type %q", req.Type))
		return
	}
	if req.Resource == nil {
		s.writeError(w, http.StatusBadRequest, "resource is required")
		return
	}

	existing, err := s.findExisting(r, rt, req.Resource)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	if existing == "" {
		created, err := s.store.Create(r.Context(), rt, req.Resource)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, created)
		return
	}

	req.Resource[store.UUIDField] = existing
	updated, err := s.store.Update(r.Context(), rt, req.Resource)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

// findExisting returns the uuid of the stored resource res refers to, or ""
// if it is new.
func (s *Server) findExisting(r *http.Request, rt *store.ResourceType, res store.Resource) (string, error) {
	if id := res.UUID(); id != "" {
		ok, err := s.store.Exists(r.Context(), rt.Name, id)
		if err != nil || !ok {
			return "", err
		}
		return id, nil
	}
	for _, field := range rt.Indexes {
		value, isString := res[field].(string)
		if !isString || value == "" {
			continue
		}
		found, err := s.store.LookupByIndex(r.Context(), rt, field, value)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		return found.UUID(), nil
	}
	return "", nil
}
