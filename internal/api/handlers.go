package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reloquent/catalogmap/internal/location"
	"github.com/reloquent/catalogmap/internal/mapping"
	"github.com/reloquent/catalogmap/internal/tree"
)

// session resolves the {id} path value, writing the error response when
// the session is not open.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*tree.Session, bool) {
	sess, err := s.engine.Session(r.PathValue("id"))
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return nil, false
	}
	return sess, true
}

// node finds a node by id; an empty id is the root.
func node(w http.ResponseWriter, sess *tree.Session, id string) (*tree.Node, bool) {
	if id == "" {
		return sess.Root(), true
	}
	n, ok := sess.Find(id)
	if !ok {
		errorResponse(w, http.StatusNotFound, "unknown node: "+id)
		return nil, false
	}
	return n, true
}

// publishChanges drains the session's changed nodes and broadcasts them.
func (s *Server) publishChanges(sess *tree.Session) []tree.NodeView {
	ids := sess.TakeChanges()
	views := make([]tree.NodeView, 0, len(ids))
	for _, id := range ids {
		if n, ok := sess.Find(id); ok {
			views = append(views, sess.View(n))
		}
	}
	if s.hub != nil && len(views) > 0 {
		s.hub.BroadcastNodeChanged(sess.ID(), views)
	}
	return views
}

func sessionResponse(sess *tree.Session) SessionResponse {
	return SessionResponse{
		ID:       sess.ID(),
		Identity: sess.Identity().Key(),
		Root:     sess.View(sess.Root()),
	}
}

func mappingResponse(res mapping.Result) MappingResponse {
	resp := MappingResponse{
		IsSuccess:          res.IsSuccess,
		ErrorMessages:      res.ErrorMessages,
		UnsupportedColumns: res.UnsupportedColumns,
	}
	if res.Record != nil {
		resp.DestinationName = res.Record.DestinationName
		resp.SourceLocation = res.Record.SourceLocation
		resp.Columns = res.Record.Columns
	}
	return resp
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.OpenSession()
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("session opened", "session", sess.ID(), "identity", sess.Identity().Key())
	jsonResponse(w, http.StatusCreated, sessionResponse(sess))
}

func (s *Server) handleDropSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.DropSession(id); err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("session dropped", "session", id)
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.RefreshSession(r.PathValue("id"))
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, sessionResponse(sess))
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, ok := node(w, sess, r.URL.Query().Get("node"))
	if !ok {
		return
	}

	kids, err := sess.Children(r.Context(), n)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.publishChanges(sess)

	resp := ChildrenResponse{
		Node:     sess.View(n),
		Children: make([]tree.NodeView, 0, len(kids)),
	}
	for _, k := range kids {
		resp.Children = append(resp.Children, sess.View(k))
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, ok := node(w, sess, req.Node)
	if !ok {
		return
	}

	if req.Enabled != nil {
		if err := sess.SetEnabled(r.Context(), n, *req.Enabled); err != nil {
			errorResponse(w, statusFor(err), err.Error())
			return
		}
	}
	if req.Enabled == nil || *req.Enabled {
		if err := sess.SetChecked(r.Context(), n, req.Checked); err != nil {
			errorResponse(w, statusFor(err), err.Error())
			return
		}
	}

	jsonResponse(w, http.StatusOK, ChangesResponse{Changed: s.publishChanges(sess)})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	loc := location.Parse(r.URL.Query().Get("location"))
	if len(loc) == 0 {
		errorResponse(w, http.StatusBadRequest, "location is required")
		return
	}
	n, ok := node(w, sess, loc.String())
	if !ok {
		return
	}

	res, err := sess.MappingInfo(r.Context(), n)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.publishChanges(sess)
	jsonResponse(w, http.StatusOK, mappingResponse(res))
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req UpdateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc := location.Parse(req.Location)
	if len(loc) == 0 {
		errorResponse(w, http.StatusBadRequest, "location is required")
		return
	}

	res, err := sess.UpdateMapping(r.Context(), loc, req.Schema, req.Table, req.Columns)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.publishChanges(sess)
	jsonResponse(w, http.StatusOK, mappingResponse(res))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	resp := ValidateResponse{Valid: true}
	err := sess.Validate(r.Context())
	switch {
	case errors.Is(err, tree.ErrNoObjectsSelected):
		resp.Valid = false
		resp.Error = err.Error()
	case err != nil:
		errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.publishChanges(sess)

	resp.Selected = len(sess.CheckedLeaves())
	resp.Notices = sess.Notices()
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Selection(r.Context(), sess)
	s.publishChanges(sess)
	if err != nil {
		errorResponse(w, statusFor(err), err.Error())
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		data, err := res.YAML()
		if err != nil {
			errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(data)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	notices := sess.Notices()
	if notices == nil {
		notices = []tree.Notice{}
	}
	jsonResponse(w, http.StatusOK, notices)
}
