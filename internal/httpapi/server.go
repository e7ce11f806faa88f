package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/server"
)

// ServerConfig carries the tunables for the HTTP API.
type ServerConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	MaxBodyBytes int64
	Catalog      habit.Catalog
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Server exposes the habit API over HTTP: token auth under /api/auth,
// activity CRUD under /api/habits, and a change feed under /api/changes.
type Server struct {
	store *server.Store
	cfg   ServerConfig
	hub   *changeHub
}

// NewServer builds a server with default limits.
func NewServer(store *server.Store, jwtSecret string) *Server {
	return NewServerWithConfig(store, ServerConfig{JWTSecret: jwtSecret})
}

// NewServerWithConfig builds a server with explicit configuration.
func NewServerWithConfig(store *server.Store, cfg ServerConfig) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Catalog.Len() == 0 {
		cfg.Catalog = habit.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{store: store, cfg: cfg, hub: newChangeHub(cfg.Logger)}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/health":
		s.handleHealth(w, r)
	case "/api/auth":
		s.handleAuth(w, r)
	case "/api/habits":
		s.handleHabits(w, r)
	case "/api/habits/ws":
		s.handleChanges(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req authRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Action {
	case "signup":
		s.handleSignup(w, req)
	case "login":
		s.handleLogin(w, req)
	case "verify":
		s.handleVerify(w, r)
	default:
		writeError(w, http.StatusBadRequest, "invalid action")
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, req authRequest) {
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		s.cfg.Logger.WithError(err).Error("hash password")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.store.CreateUser(req.Username, hash); err != nil {
		if errors.Is(err, server.ErrUserExists) {
			writeError(w, http.StatusConflict, "Username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := issueToken(s.cfg.JWTSecret, req.Username, s.cfg.TokenTTL, s.cfg.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.cfg.Logger.WithField("user", req.Username).Info("user signed up")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, req authRequest) {
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	hash, ok := s.store.Credentials(req.Username)
	if !ok || !checkPassword(hash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	token, err := issueToken(s.cfg.JWTSecret, req.Username, s.cfg.TokenTTL, s.cfg.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": req.Username})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *Server) handleHabits(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, user)
	case http.MethodPost:
		s.handleCreate(w, r, user)
	case http.MethodPut:
		s.handleUpdate(w, r, user)
	case http.MethodDelete:
		s.handleDelete(w, r, user)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, user string) {
	activities := s.store.Activities(user)
	if activities == nil {
		activities = []habit.ActivityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activities": activities})
}

type activityRequest struct {
	ID       json.RawMessage      `json:"id"`
	Activity *habit.ActivityEvent `json:"activity"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, user string) {
	var req activityRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Activity == nil {
		writeError(w, http.StatusBadRequest, "Activity data required")
		return
	}
	if err := req.Activity.Validate(s.cfg.Catalog); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created := s.store.CreateActivity(user, *req.Activity)
	s.hub.Broadcast(user)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity": created})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, user string) {
	var req activityRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := rawID(req.ID)
	if id == "" || req.Activity == nil {
		writeError(w, http.StatusBadRequest, "Activity ID and data required")
		return
	}
	if err := req.Activity.Validate(s.cfg.Catalog); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.store.UpdateActivity(user, id, *req.Activity)
	if err != nil {
		if errors.Is(err, server.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.hub.Broadcast(user)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity": updated})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, user string) {
	var req activityRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := rawID(req.ID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Activity ID required")
		return
	}
	if err := s.store.DeleteActivity(user, id); err != nil {
		if errors.Is(err, server.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.hub.Broadcast(user)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) decodeBody(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		io.Copy(io.Discard, body)
		body.Close()
	}()
	return json.NewDecoder(body).Decode(v)
}

// rawID accepts both string and numeric wire ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if asNumber == float64(int64(asNumber)) {
			return strconv.FormatInt(int64(asNumber), 10)
		}
		return fmt.Sprintf("%v", asNumber)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
