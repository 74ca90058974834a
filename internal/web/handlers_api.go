package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"lightnode/internal/node"
	"lightnode/internal/protocol"
)

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		s.nodeError(w, "snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// commandRequest names a command either by its raw seven-character body
// or by grammar name plus parameter.
type commandRequest struct {
	Body    string `json:"body,omitempty"`
	Name    string `json:"name,omitempty"`
	Value   *int   `json:"value,omitempty"`
	Host    string `json:"host,omitempty"`
	Address *int   `json:"address,omitempty"`
}

var (
	errNoCommand    = errors.New("body or name is required")
	errBadValue     = errors.New("value out of range")
	errBadAddress   = errors.New("address must be 0-255")
	errBadHost      = errors.New("host must be 4 characters")
	errUnknownName  = errors.New("unknown command name")
	errMissingValue = errors.New("command takes a value")
)

func (req commandRequest) frame() (protocol.Frame, error) {
	dest := protocol.Broadcast
	if req.Address != nil {
		if *req.Address < 0 || *req.Address > 0xFF {
			return protocol.Frame{}, errBadAddress
		}
		dest = byte(*req.Address)
	}

	if req.Body != "" {
		return protocol.NewFrame(req.Body, dest)
	}
	if req.Name == "" {
		return protocol.Frame{}, errNoCommand
	}

	t, ok := protocol.LookupName(req.Name)
	if !ok {
		return protocol.Frame{}, errUnknownName
	}
	cmd := protocol.Command{ID: t.ID, Dest: dest}
	switch t.Param {
	case protocol.ParamHex:
		if len(req.Host) != len(cmd.Address) {
			return protocol.Frame{}, errBadHost
		}
		copy(cmd.Address[:], req.Host)
	case protocol.ParamDecimal, protocol.ParamDigit:
		if req.Value == nil {
			return protocol.Frame{}, errMissingValue
		}
		limit := 99
		if t.Param == protocol.ParamDigit {
			limit = 9
		}
		if *req.Value < 0 || *req.Value > limit {
			return protocol.Frame{}, errBadValue
		}
		cmd.Value = uint8(*req.Value)
	}
	return cmd.Encode()
}

func (s *Server) handleAPICommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	f, err := req.frame()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.ctrl.Submit(f); err != nil {
		s.nodeError(w, "submit", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "frame": f.String()})
}

func (s *Server) handleAPIMotion(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.InjectMotion(); err != nil {
		s.nodeError(w, "inject motion", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type commandInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Body  string `json:"body"`
	Param string `json:"param"`
}

var paramNames = map[protocol.ParamKind]string{
	protocol.ParamNone:    "none",
	protocol.ParamHex:     "hex",
	protocol.ParamDecimal: "decimal",
	protocol.ParamDigit:   "digit",
}

func (s *Server) handleAPICommands(w http.ResponseWriter, r *http.Request) {
	templates := protocol.Templates()
	out := make([]commandInfo, 0, len(templates))
	for _, t := range templates {
		out = append(out, commandInfo{ID: int(t.ID), Name: t.Name, Body: t.Body, Param: paramNames[t.Param]})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version, "node": s.ctrl.Name()})
}

func (s *Server) nodeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, node.ErrStopped) {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "node stopped"})
		return
	}
	s.logger.Error(op, "err", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
