package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xhad/ragdesk/internal/models"
	"github.com/xhad/ragdesk/internal/types"
	"github.com/xhad/ragdesk/pkg/rag"
	"github.com/xhad/ragdesk/pkg/tasks"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "RAG API is running"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status(scopeOf(c)))
}

func (s *Server) vectors(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.VectorStats(scopeOf(c)))
}

// submitted is the response to every job submission.
func submitted(c *gin.Context, rec models.TaskRecord) {
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": rec.ID,
		"status":  rec.Status,
		"message": rec.Message,
	})
}

// --- documents ---

func (s *Server) listDocuments(c *gin.Context) {
	docs, err := s.svc.ListDocuments(c.Request.Context(), scopeOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(docs), "documents": docs})
}

// multipartOverhead covers the form boundary and part headers around the file.
const multipartOverhead = 1 << 20

func (s *Server) uploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes+multipartOverhead)
	fh, err := c.FormFile("document")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("file exceeds %d bytes", s.config.MaxUploadBytes))
		return
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please upload a file.")
		return
	}
	if fh.Size > s.config.MaxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "too_large", fmt.Sprintf("file exceeds %d bytes", s.config.MaxUploadBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	rec, err := s.svc.SubmitUpload(c.Request.Context(), scopeOf(c), fh.Filename, content)
	if err != nil {
		s.fail(c, err)
		return
	}
	submitted(c, rec)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) importURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please provide a URL.")
		return
	}
	rec, err := s.svc.SubmitFetch(c.Request.Context(), scopeOf(c), req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}
	submitted(c, rec)
}

func (s *Server) deleteDocument(c *gin.Context) {
	name := c.Param("name")
	rec, err := s.svc.DeleteDocument(c.Request.Context(), scopeOf(c), name)
	if errors.Is(err, types.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "File not found.")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("%q deleted. Re-indexing.", name),
		"task_id": rec.ID,
		"status":  rec.Status,
	})
}

// --- tasks ---

func (s *Server) reindex(c *gin.Context) {
	rec, err := s.svc.SubmitReindex(c.Request.Context(), scopeOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	submitted(c, rec)
}

// task loads the task named by the :id param, hiding other scopes' tasks.
func (s *Server) task(c *gin.Context) (models.TaskRecord, bool) {
	rec, err := s.svc.Engine().Get(c.Request.Context(), c.Param("id"))
	if err == nil && rec.Scope != scopeOf(c) {
		err = types.ErrNotFound
	}
	if errors.Is(err, types.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "Task not found.")
		return rec, false
	}
	if err != nil {
		s.fail(c, err)
		return rec, false
	}
	return rec, true
}

func (s *Server) getTask(c *gin.Context) {
	rec, ok := s.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) cancelTask(c *gin.Context) {
	rec, ok := s.task(c)
	if !ok {
		return
	}
	if _, err := s.svc.Engine().Cancel(c.Request.Context(), rec.ID); err != nil {
		if errors.Is(err, tasks.ErrInvalidTransition) {
			respondError(c, http.StatusBadRequest, "invalid_transition", fmt.Sprintf("Task is already %s.", rec.Status))
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task cancelled."})
}

func (s *Server) listTasks(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.svc.Engine().List(c.Request.Context(), scopeOf(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "tasks": list})
}

// --- search ---

type searchRequest struct {
	Query    string `json:"query"`
	TopK     *int   `json:"top_k"`
	InitialK int    `json:"initial_k"`
	FinalK   int    `json:"final_k"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please provide a non-empty query.")
		return
	}
	topK := 3
	if req.TopK != nil {
		topK = *req.TopK
	}
	res, err := s.svc.Search(c.Request.Context(), scopeOf(c), req.Query, topK)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) searchRerank(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please provide a non-empty query.")
		return
	}
	res, err := s.svc.SearchRerank(c.Request.Context(), scopeOf(c), req.Query, req.InitialK, req.FinalK)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) suggest(c *gin.Context) {
	q := c.Query("q")
	out, err := s.svc.Suggest(scopeOf(c), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "count": len(out), "suggestions": out})
}

// --- answers ---

type askRequest struct {
	Question string            `json:"question"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key"`
	TopK     int               `json:"top_k"`
	History  []models.ChatTurn `json:"history"`
}

func (r askRequest) toAsk() rag.AskRequest {
	return rag.AskRequest{
		Question:   r.Question,
		Provider:   r.Provider,
		Model:      r.Model,
		Credential: r.APIKey,
		TopK:       r.TopK,
		History:    r.History,
	}
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please provide a non-empty 'question' in the request body.")
		return
	}
	ans, err := s.svc.Answer(c.Request.Context(), scopeOf(c), req.toAsk())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (s *Server) chat(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Please provide a non-empty question.")
		return
	}
	msg, err := s.svc.Chat(c.Request.Context(), scopeOf(c), req.toAsk())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) chatHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.svc.ChatHistory(c.Request.Context(), scopeOf(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "chats": list})
}

func (s *Server) citations(c *gin.Context) {
	msg, cites, err := s.svc.Citations(c.Request.Context(), scopeOf(c), c.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "Chat not found.")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat_id":         msg.ID,
		"question":        msg.Question,
		"total_citations": len(cites),
		"citations":       cites,
	})
}

func (s *Server) exportChat(c *gin.Context) {
	text, err := s.svc.ExportChat(c.Request.Context(), scopeOf(c), c.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "Chat not found.")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.md"`, c.Param("id")))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(text))
}

type feedbackRequest struct {
	Rating  string `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", `Rating must be "up" or "down".`)
		return
	}
	fb, created, err := s.svc.Feedback(c.Request.Context(), scopeOf(c), c.Param("id"), req.Rating, req.Comment)
	if errors.Is(err, types.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", "Chat not found.")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	status, message := http.StatusOK, "Feedback updated."
	if created {
		status, message = http.StatusCreated, "Feedback submitted."
	}
	c.JSON(status, gin.H{
		"message":    message,
		"chat_id":    fb.ChatID,
		"rating":     fb.Rating,
		"comment":    fb.Comment,
		"created_at": fb.CreatedAt,
	})
}

// --- providers ---

func (s *Server) providers(c *gin.Context) {
	catalog := s.svc.Gateway().Catalog()
	out := make([]gin.H, 0, len(catalog))
	for _, p := range catalog.Providers() {
		out = append(out, gin.H{"provider": p, "models": catalog.Models(p)})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

type providerTestRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

func (s *Server) testProvider(c *gin.Context) {
	var req providerTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "provider, model and api_key are required")
		return
	}
	reply, err := s.svc.Gateway().TestConnection(c.Request.Context(), req.Provider, req.Model, req.APIKey)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection successful.", "reply": reply})
}

// --- settings ---

func (s *Server) providerSettings(c *gin.Context) {
	settings, err := s.svc.ProviderSettings(c.Request.Context(), scopeOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) saveProviderSettings(c *gin.Context) {
	var req providerTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "provider and model are required")
		return
	}
	settings, err := s.svc.SetProviderConfig(c.Request.Context(), scopeOf(c), models.ProviderConfig{
		Provider:   req.Provider,
		Model:      req.Model,
		Credential: req.APIKey,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) testProviderSettings(c *gin.Context) {
	reply, err := s.svc.TestProviderConfig(c.Request.Context(), scopeOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Connection successful.", "reply": reply})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &rag.ValidationError{Field: key, Message: "must be a non-negative integer"}
	}
	return v, nil
}
