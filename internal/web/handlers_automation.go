package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"

	"lightnode/internal/automation"
	"lightnode/internal/node"
)

// automationView is a stored script with what it asks of the node.
type automationView struct {
	*automation.Script
	Running  bool               `json:"running"`
	Events   []string           `json:"events"`
	Commands []string           `json:"commands,omitempty"`
	Issues   []automation.Issue `json:"issues,omitempty"`
	// SyntaxError is set for files edited on disk that no longer parse.
	SyntaxError string `json:"syntax_error,omitempty"`
}

func (s *Server) viewOf(sc *automation.Script) automationView {
	v := automationView{Script: sc, Events: []string{}}
	if s.autoEngine != nil {
		v.Running = s.autoEngine.Running(sc.ID)
	}
	a, err := automation.Check(sc.LuaCode)
	if err != nil {
		v.SyntaxError = err.Error()
		return v
	}
	v.Events, v.Commands, v.Issues = a.Events, a.Commands, a.Issues
	return v
}

type saveAutomationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LuaCode     string `json:"lua_code"`
	Enabled     bool   `json:"enabled"`
}

func (s *Server) automationsReady(w http.ResponseWriter) bool {
	if s.scriptMgr == nil || s.autoEngine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "automations not available"})
		return false
	}
	return true
}

func (s *Server) scriptError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, automation.ErrInvalidID):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid script id"})
	case errors.Is(err, os.ErrNotExist):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "script not found"})
	default:
		s.logger.Error(op, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// decodeScript reads a save request and rejects code that does not parse.
func (s *Server) decodeScript(w http.ResponseWriter, r *http.Request) (*saveAutomationRequest, bool) {
	var req saveAutomationRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return nil, false
	}
	if _, err := automation.Check(req.LuaCode); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

// activate starts or stops the script's VM to match its enabled flag.
func (s *Server) activate(sc *automation.Script) {
	if !sc.Meta.Enabled {
		s.autoEngine.StopScript(sc.ID)
		return
	}
	if err := s.autoEngine.ReloadScript(sc.ID); err != nil {
		s.logger.Error("start script", "id", sc.ID, "err", err)
	}
}

func (s *Server) handleAPIListAutomations(w http.ResponseWriter, r *http.Request) {
	views := []automationView{}
	if s.scriptMgr != nil {
		scripts, err := s.scriptMgr.List()
		if err != nil {
			s.scriptError(w, "list scripts", err)
			return
		}
		for _, sc := range scripts {
			views = append(views, s.viewOf(sc))
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	sc, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.scriptError(w, "get script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewOf(sc))
}

func (s *Server) handleAPICreateAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	req, ok := s.decodeScript(w, r)
	if !ok {
		return
	}
	if req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	saved, err := s.scriptMgr.Save(&automation.Script{
		Meta:    automation.ScriptMeta{Name: req.Name, Description: req.Description, Enabled: req.Enabled},
		LuaCode: req.LuaCode,
	})
	if err != nil {
		s.scriptError(w, "create script", err)
		return
	}
	s.activate(saved)
	s.writeJSON(w, http.StatusCreated, s.viewOf(saved))
}

func (s *Server) handleAPIUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	existing, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.scriptError(w, "get script", err)
		return
	}
	req, ok := s.decodeScript(w, r)
	if !ok {
		return
	}
	if req.Name != "" {
		existing.Meta.Name = req.Name
	}
	existing.Meta.Description = req.Description
	existing.Meta.Enabled = req.Enabled
	existing.LuaCode = req.LuaCode

	saved, err := s.scriptMgr.Save(existing)
	if err != nil {
		s.scriptError(w, "update script", err)
		return
	}
	s.activate(saved)
	s.writeJSON(w, http.StatusOK, s.viewOf(saved))
}

func (s *Server) handleAPIToggleAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	sc, err := s.scriptMgr.Get(r.PathValue("id"))
	if err != nil {
		s.scriptError(w, "get script", err)
		return
	}
	sc.Meta.Enabled = !sc.Meta.Enabled
	saved, err := s.scriptMgr.Save(sc)
	if err != nil {
		s.scriptError(w, "toggle script", err)
		return
	}
	s.activate(saved)
	s.writeJSON(w, http.StatusOK, s.viewOf(saved))
}

func (s *Server) handleAPIDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	id := r.PathValue("id")
	s.autoEngine.StopScript(id)
	if err := s.scriptMgr.Delete(id); err != nil {
		s.scriptError(w, "delete script", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIRunAutomation runs a stored script once, or the posted code
// when the id is "_inline".
func (s *Server) handleAPIRunAutomation(w http.ResponseWriter, r *http.Request) {
	if !s.automationsReady(w) {
		return
	}
	id := r.PathValue("id")
	if id != "_inline" {
		s.writeJSON(w, http.StatusOK, s.autoEngine.RunScript(id))
		return
	}
	var req struct {
		LuaCode string `json:"lua_code"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.autoEngine.RunLuaCode(req.LuaCode))
}

// handleAPICheckAutomation reports what posted code subscribes to and
// sends without running it.
func (s *Server) handleAPICheckAutomation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LuaCode string `json:"lua_code"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a, err := automation.Check(req.LuaCode)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

type eventSubscribers struct {
	Type    string   `json:"type"`
	Scripts []string `json:"scripts"`
}

// handleAPIAutomationEvents lists every node event type with the enabled
// scripts that handle it. Scripts subscribed to "*" appear under each type.
func (s *Server) handleAPIAutomationEvents(w http.ResponseWriter, r *http.Request) {
	subs := make(map[string][]string)
	var wildcard []string
	if s.scriptMgr != nil {
		scripts, err := s.scriptMgr.List()
		if err != nil {
			s.scriptError(w, "list scripts", err)
			return
		}
		for _, sc := range scripts {
			if !sc.Meta.Enabled {
				continue
			}
			a, err := automation.Check(sc.LuaCode)
			if err != nil {
				continue
			}
			for _, typ := range a.Events {
				if typ == "*" {
					wildcard = append(wildcard, sc.ID)
				} else {
					subs[typ] = append(subs[typ], sc.ID)
				}
			}
		}
	}

	out := make([]eventSubscribers, 0)
	for _, typ := range node.EventTypes() {
		ids := append(append([]string{}, subs[typ]...), wildcard...)
		sort.Strings(ids)
		out = append(out, eventSubscribers{Type: typ, Scripts: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	s.writeJSON(w, http.StatusOK, out)
}
