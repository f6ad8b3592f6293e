package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"journal-keeper/internal/domain"
	"journal-keeper/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	entries service.EntryService
	logger  logrus.FieldLogger
}

func NewHandler(users service.UserService, entries service.EntryService, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		users:   users,
		entries: entries,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger), corsMiddleware())

	router.POST("/register", h.register)
	router.POST("/login", h.login)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	entries := router.Group("/entries", h.requireBearer())
	{
		entries.POST("", h.saveEntry)
		entries.GET("", h.listEntries)
		entries.GET("/export", h.exportEntries)
		entries.DELETE("/:timestamp", h.deleteEntry)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type entryRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Mood    string   `json:"mood"`
	Tags    []string `json:"tags"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.users.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	tok, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

func (h *Handler) saveEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	_, err := h.entries.SaveEntry(c.Request.Context(), claimsFromContext(c), domain.EntryInput{
		Title:   req.Title,
		Content: req.Content,
		Mood:    req.Mood,
		Tags:    req.Tags,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true})
}

func (h *Handler) listEntries(c *gin.Context) {
	entries, err := h.entries.ListEntries(c.Request.Context(), claimsFromContext(c), service.EntryFilter{
		Query: c.Query("q"),
		Mood:  c.Query("mood"),
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) exportEntries(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	export, err := h.entries.ExportEntries(c.Request.Context(), claimsFromContext(c), format)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	c.Data(http.StatusOK, export.ContentType, export.Body)
}

func (h *Handler) deleteEntry(c *gin.Context) {
	raw := strings.TrimSpace(c.Param("timestamp"))
	timestamp, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entry timestamp required"})
		return
	}

	if err := h.entries.DeleteEntry(c.Request.Context(), claimsFromContext(c), timestamp); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindConflict:
		return http.StatusBadRequest
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the {"error": ...} envelope. Causes of 5xx responses
// are logged and never sent to the client.
func (h *Handler) abortWithError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		requestLog(c, h.logger).WithError(err).WithField("kind", kind.String()).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": service.PublicMessage(err)})
}
