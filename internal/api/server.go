package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/Martian-dev/followup-reminder/internal/analytics"
	"github.com/Martian-dev/followup-reminder/internal/auth"
	"github.com/Martian-dev/followup-reminder/internal/config"
	"github.com/Martian-dev/followup-reminder/internal/contacts"
	"github.com/Martian-dev/followup-reminder/internal/mailbox"
	webassets "github.com/Martian-dev/followup-reminder/web"
)

const (
	errAuthRequired   = "Authentication required"
	errMethodNotAllow = "Method not allowed"
	errContacts       = "Failed to fetch contacts"
	errMessage        = "Failed to fetch message"
	errGmail          = "Gmail API request failed"

	isoMillis = "2006-01-02T15:04:05.000Z"
)

// IDVerifier verifies Google id_tokens
type IDVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.User, error)
}

// Deps are the collaborators the HTTP layer needs
type Deps struct {
	Providers mailbox.ProviderFactory
	Refresher *mailbox.Refresher
	// Verifier may be nil, in which case /api/me always answers 401.
	Verifier IDVerifier
	Tracker  analytics.Tracker
	// Endpoint overrides the Google OAuth endpoint.
	Endpoint oauth2.Endpoint
}

type Server struct {
	cfg      config.Config
	deps     Deps
	logger   *slog.Logger
	engine   *gin.Engine
	staticFS fs.FS
	staticOK bool
}

func NewServer(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Endpoint.TokenURL == "" {
		deps.Endpoint = google.Endpoint
	}
	if deps.Tracker == nil {
		deps.Tracker = analytics.Nop{}
	}

	staticFS, err := webassets.Dist()
	staticOK := err == nil
	if err != nil {
		logger.Warn("ui assets not embedded", "error", err)
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		staticFS: staticFS,
		staticOK: staticOK,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	r.HandleMethodNotAllowed = true

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/auth", s.handleAuth)
	api.GET("/auth/callback", s.handleCallback)
	api.POST("/logout", s.handleLogout)
	api.GET("/me", s.handleMe)
	api.GET("/contacts", s.handleContacts)
	api.GET("/message/:id", s.handleMessage)
	api.GET("/gmail", s.handleGmail)

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": errMethodNotAllow})
	})
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.serveStatic(c.Writer, c.Request)
	})

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) oauthConfig(r *http.Request) *oauth2.Config {
	cfg := auth.OAuth(s.cfg.GoogleClientID, s.cfg.GoogleClientSecret, auth.RedirectURL(s.cfg.BaseURL, r))
	cfg.Endpoint = s.deps.Endpoint
	return cfg
}

func secure(r *http.Request) bool {
	return !auth.IsLocalhost(r)
}

func (s *Server) handleAuth(c *gin.Context) {
	state := auth.NewState()
	auth.SetState(c.Writer, state, secure(c.Request))
	c.Redirect(http.StatusFound, auth.ConsentURL(s.oauthConfig(c.Request), state))
}

func (s *Server) handleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code missing"})
		return
	}

	state := c.Query("state")
	stored := auth.StateFromRequest(c.Request)
	if state == "" || stored == "" || state != stored {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state parameter"})
		return
	}

	tok, err := s.oauthConfig(c.Request).Exchange(c.Request.Context(), code)
	if err != nil {
		s.logger.Error("exchange authorization code", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
		return
	}

	sec := secure(c.Request)
	auth.ClearState(c.Writer, sec)
	auth.SetCredentials(c.Writer, tok, sec)

	distinctID := ""
	if idToken, ok := tok.Extra("id_token").(string); ok {
		if user, err := s.verify(c.Request.Context(), idToken); err == nil {
			distinctID = user.ID
			s.logger.Info("gmail account connected", "email", user.Email)
		}
	}
	s.deps.Tracker.Track(distinctID, analytics.EventLoginCompleted, nil)

	c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleLogout(c *gin.Context) {
	auth.ClearCredentials(c.Writer, secure(c.Request))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	cookie, err := c.Request.Cookie(auth.IDTokenCookie)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthRequired})
		return
	}

	user, err := s.verify(c.Request.Context(), cookie.Value)
	if err != nil {
		s.logger.Debug("verify id token", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthRequired})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) verify(ctx context.Context, raw string) (*auth.User, error) {
	if s.deps.Verifier == nil {
		return nil, auth.ErrInvalidIDToken
	}
	return s.deps.Verifier.Verify(ctx, raw)
}

func (s *Server) handleContacts(c *gin.Context) {
	s.writeContacts(c, errContacts)
}

func (s *Server) handleMessage(c *gin.Context) {
	s.writeMessage(c, c.Param("id"), errMessage)
}

// handleGmail is the combined endpoint older clients call with ?action=
func (s *Server) handleGmail(c *gin.Context) {
	switch c.Query("action") {
	case "contacts":
		s.writeContacts(c, errGmail)
	case "message":
		if id := c.Query("messageId"); id != "" {
			s.writeMessage(c, id, errGmail)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	}
}

type contactJSON struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	LastContact   string `json:"lastContact"`
	LastMessageID string `json:"lastMessageId"`
	DaysSince     int    `json:"daysSince"`
	Overdue       bool   `json:"overdue"`
}

func (s *Server) writeContacts(c *gin.Context, failure string) {
	frequency := s.cfg.DefaultFrequencyDays
	if raw := c.Query("frequency"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || !contacts.ValidFrequency(parsed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "frequency must be a positive number of days"})
			return
		}
		frequency = parsed
	}

	creds, provider, ok := s.provider(c, failure)
	if !ok {
		return
	}

	start := time.Now()
	ctx := c.Request.Context()
	records, err := s.deps.Refresher.Contacts(ctx, provider)
	if err != nil {
		s.providerError(c, err, failure)
		return
	}

	entries := s.deps.Refresher.Evaluate(records, frequency)

	out := make([]contactJSON, 0, len(entries))
	overdue := 0
	for _, e := range entries {
		if e.Overdue {
			overdue++
		}
		out = append(out, contactJSON{
			ID:            e.Email,
			Email:         e.Email,
			Name:          e.DisplayName,
			LastContact:   e.LastContactAt.UTC().Format(isoMillis),
			LastMessageID: e.LastMessageID,
			DaysSince:     e.DaysSince,
			Overdue:       e.Overdue,
		})
	}

	distinctID := ""
	if user, err := s.verify(ctx, creds.IDToken); err == nil {
		distinctID = user.ID
		if sent := s.deps.Refresher.Remind(ctx, user.ID, entries, frequency); sent > 0 {
			s.logger.Info("published follow-up reminders", "count", sent)
		}
	}
	s.deps.Tracker.Track(distinctID, analytics.EventContactsLoaded, map[string]any{
		"contacts":   len(out),
		"overdue":    overdue,
		"frequency":  frequency,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	c.JSON(http.StatusOK, gin.H{"contacts": out, "frequency": frequency})
}

func (s *Server) writeMessage(c *gin.Context, id, failure string) {
	creds, provider, ok := s.provider(c, failure)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	body, err := provider.MessageBody(ctx, id)
	if err != nil {
		s.providerError(c, err, failure)
		return
	}

	distinctID := ""
	if user, err := s.verify(ctx, creds.IDToken); err == nil {
		distinctID = user.ID
	}
	s.deps.Tracker.Track(distinctID, analytics.EventMessagePreviewed, nil)
	c.JSON(http.StatusOK, gin.H{"message": body})
}

// provider builds a mail provider from the request's cookies, answering 401
// when they are missing
func (s *Server) provider(c *gin.Context, failure string) (auth.Credentials, mailbox.SentMailProvider, bool) {
	creds, err := auth.CredentialsFromRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthRequired})
		return auth.Credentials{}, nil, false
	}

	provider, err := s.deps.Providers(c.Request.Context(), creds)
	if err != nil {
		s.logger.Error("create mail provider", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
		return auth.Credentials{}, nil, false
	}
	return creds, provider, true
}

func (s *Server) providerError(c *gin.Context, err error, failure string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, mailbox.ErrAuthRequired) {
		auth.ClearCredentials(c.Writer, secure(c.Request))
		c.JSON(http.StatusUnauthorized, gin.H{"error": errAuthRequired})
		return
	}
	s.logger.Error("gmail api", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if !s.staticOK {
		http.Error(w, "UI not embedded", http.StatusNotFound)
		return
	}

	cleaned := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if cleaned == "" {
		cleaned = "index.html"
	}

	if s.serveEmbeddedFile(w, r, cleaned) {
		return
	}
	if s.serveEmbeddedFile(w, r, "index.html") {
		return
	}
	http.Error(w, "UI not embedded", http.StatusNotFound)
}

func (s *Server) serveEmbeddedFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, err := s.staticFS.Open(name)
	if err != nil {
		return false
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, info.Name(), info.ModTime(), seeker)
		return true
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
	return true
}
