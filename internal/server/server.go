package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"syllabus-rag/internal/config"
	"syllabus-rag/internal/models"
	"syllabus-rag/internal/session"
)

// Assistant indexes syllabi and answers questions about them.
type Assistant interface {
	IndexDocument(ctx context.Context, data []byte, filename string) (int, error)
	Query(ctx context.Context, question string) (*models.PromptResponse, error)
}

type Server struct {
	assistant Assistant
	sessions  *session.Store
	cfg       config.ServerConfig

	// OnIndexed runs after every successful upload, e.g. to snapshot the index.
	OnIndexed func() error
}

type questionRequest struct {
	Question string `json:"question" binding:"required"`
}

type answerResponse struct {
	Answer  string `json:"answer"`
	Sources string `json:"sources"`
}

func New(assistant Assistant, sessions *session.Store, cfg config.ServerConfig) *Server {
	return &Server{assistant: assistant, sessions: sessions, cfg: cfg}
}

// Router registers the JSON API on a new gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/documents", s.uploadDocument)
		api.GET("/suggestions", s.suggestions)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", s.createSession)
			sessions.GET("/:id", s.getSession)
			sessions.POST("/:id/questions", s.ask)
			sessions.DELETE("/:id/turns", s.clearSession)
			sessions.GET("/:id/transcript", s.transcript)
		}
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) uploadDocument(c *gin.Context) {
	if s.cfg.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadMB<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := s.assistant.IndexDocument(c.Request.Context(), data, fh.Filename)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "filename": fh.Filename, "chunks": n})
		return
	}
	if s.OnIndexed != nil {
		if err := s.OnIndexed(); err != nil {
			log.Warn().Err(err).Msg("Post-index hook failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"filename": fh.Filename, "chunks": n})
}

func (s *Server) suggestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": models.SuggestedQuestions})
}

func (s *Server) createSession(c *gin.Context) {
	conv, err := s.sessions.Create()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": conv.ID})
}

func (s *Server) conversation(c *gin.Context) (*session.Conversation, bool) {
	conv, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	}
	return conv, ok
}

func (s *Server) getSession(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": conv.ID, "turns": conv.Turns()})
}

func (s *Server) ask(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	question := strings.TrimSpace(req.Question)

	conv.Append(session.Turn{Role: session.RoleUser, Content: question})
	resp, err := s.assistant.Query(c.Request.Context(), question)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	conv.Append(session.Turn{Role: session.RoleAssistant, Content: resp.Content, Sources: resp.Source})
	c.JSON(http.StatusOK, answerResponse{Answer: resp.Content, Sources: resp.Source})
}

func (s *Server) clearSession(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	conv.Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) transcript(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	page, err := conv.ExportHTML()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, models.ErrParse), errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrPartialUpsert), errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
