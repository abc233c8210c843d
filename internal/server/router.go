package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sarvinsurya/docs-sync-backend/internal/auth"
	"github.com/Sarvinsurya/docs-sync-backend/internal/documents"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "docsync_user_id"

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingDocumentService = errors.New("document service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// TokenManager validates bearer tokens presented on the REST surface.
type TokenManager interface {
	ValidateClaims(token string) (auth.Claims, error)
}

// UserRegistrar records identities observed in validated token claims.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, userID, email, displayName string) error
}

// RealtimeHandler serves the persistent collaboration channel.
type RealtimeHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Dependencies wires the HTTP layer to the services it fronts.
type Dependencies struct {
	TokenManager TokenManager
	Documents    *documents.Service
	Users        UserRegistrar
	Realtime     RealtimeHandler
	Logger       *zap.Logger
}

// NewHTTPHandler builds the REST router and mounts the realtime endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Documents == nil {
		return nil, errMissingDocumentService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		documents: deps.Documents,
		users:     deps.Users,
		logger:    logger,
	}

	if deps.Realtime != nil {
		router.GET("/ws", func(c *gin.Context) {
			deps.Realtime.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// Shared-link reads are public; no bearer token required.
	router.GET("/api/documents/shared/:token", handler.handleSharedDocument)

	protected := router.Group("/api/documents")
	protected.Use(handler.authorizeRequest)
	protected.POST("", handler.handleCreateDocument)
	protected.GET("", handler.handleListDocuments)
	protected.GET("/:id", handler.handleGetDocument)
	protected.PUT("/:id", handler.handleUpdateDocument)
	protected.DELETE("/:id", handler.handleDeleteDocument)
	protected.POST("/:id/share", handler.handleShareDocument)
	protected.GET("/:id/versions", handler.handleListVersions)
	protected.GET("/:id/versions/:versionNumber", handler.handleGetVersion)
	protected.POST("/:id/versions/:versionNumber/restore", handler.handleRestoreVersion)

	return router, nil
}

type httpHandler struct {
	tokens    TokenManager
	documents *documents.Service
	users     UserRegistrar
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateClaims(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Token invalid or expired"})
		return
	}

	if h.users != nil {
		if err := h.users.EnsureUser(c.Request.Context(), claims.Subject, claims.UserEmail, claims.UserDisplayName); err != nil {
			h.logger.Warn("user registration failed", zap.Error(err), zap.String("user_id", claims.Subject))
		}
	}

	c.Set(userIDContextKey, claims.Subject)
	c.Next()
}

func (h *httpHandler) requesterID(c *gin.Context) (documents.UserID, bool) {
	userID, err := documents.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized to access this route"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) documentID(c *gin.Context) (documents.DocumentID, bool) {
	documentID, err := documents.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Document not found"})
		return "", false
	}
	return documentID, true
}

type createDocumentPayload struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleCreateDocument(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}

	var request createDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Please provide a document title"})
		return
	}

	document, err := h.documents.Create(c.Request.Context(), userID, request.Title)
	if err != nil {
		h.writeServiceError(c, err, "create document")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": documentPayloadFrom(document)})
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}

	results, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		h.writeServiceError(c, err, "list documents")
		return
	}

	payloads := make([]documentPayload, 0, len(results))
	for _, document := range results {
		payloads = append(payloads, documentPayloadFrom(document))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(payloads), "data": payloads})
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	document, err := h.documents.Get(c.Request.Context(), userID, documentID)
	if err != nil {
		h.writeServiceError(c, err, "access this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": documentPayloadFrom(document)})
}

type updateDocumentPayload struct {
	Title         *string `json:"title"`
	Content       *string `json:"content"`
	IsRichText    *bool   `json:"isRichText"`
	CreateVersion bool    `json:"createVersion"`
}

func (h *httpHandler) handleUpdateDocument(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	var request updateDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid update payload"})
		return
	}

	document, err := h.documents.Update(c.Request.Context(), userID, documentID, documents.UpdateRequest{
		Title:         request.Title,
		Content:       request.Content,
		IsRichText:    request.IsRichText,
		CreateVersion: request.CreateVersion,
	})
	if err != nil {
		h.writeServiceError(c, err, "edit this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": documentPayloadFrom(document)})
}

func (h *httpHandler) handleDeleteDocument(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	if err := h.documents.Delete(c.Request.Context(), userID, documentID); err != nil {
		h.writeServiceError(c, err, "delete this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{}})
}

type shareDocumentPayload struct {
	Email        string `json:"email"`
	Permission   string `json:"permission"`
	GenerateLink bool   `json:"generateLink"`
}

func (h *httpHandler) handleShareDocument(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	var request shareDocumentPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Please provide an email or request a shareable link"})
		return
	}

	if request.GenerateLink {
		token, err := h.documents.GenerateShareableLink(c.Request.Context(), userID, documentID)
		if err != nil {
			h.writeServiceError(c, err, "share this document")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"shareableLink": fmt.Sprintf("%s://%s/api/documents/shared/%s", requestScheme(c.Request), c.Request.Host, token),
		})
		return
	}

	if strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Please provide an email or request a shareable link"})
		return
	}

	permission, err := documents.ParsePermission(request.Permission)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Permission must be view or edit"})
		return
	}

	document, err := h.documents.ShareWithUser(c.Request.Context(), userID, documentID, request.Email, permission)
	if err != nil {
		h.writeServiceError(c, err, "share this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": documentPayloadFrom(document)})
}

func (h *httpHandler) handleSharedDocument(c *gin.Context) {
	view, err := h.documents.ResolveSharedDocument(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeServiceError(c, err, "access this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}

	history, err := h.documents.ListVersions(c.Request.Context(), userID, documentID)
	if err != nil {
		h.writeServiceError(c, err, "access this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"currentVersion": history.CurrentVersion,
		"data":           history.Versions,
	})
}

func (h *httpHandler) handleGetVersion(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(c)
	if !ok {
		return
	}

	version, err := h.documents.GetVersion(c.Request.Context(), userID, documentID, versionNumber)
	if err != nil {
		h.writeServiceError(c, err, "access this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": versionPayloadFrom(version)})
}

func (h *httpHandler) handleRestoreVersion(c *gin.Context) {
	userID, ok := h.requesterID(c)
	if !ok {
		return
	}
	documentID, ok := h.documentID(c)
	if !ok {
		return
	}
	versionNumber, ok := h.versionNumber(c)
	if !ok {
		return
	}

	document, err := h.documents.RestoreVersion(c.Request.Context(), userID, documentID, versionNumber)
	if err != nil {
		h.writeServiceError(c, err, "edit this document")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Restored to version %d", versionNumber),
		"data":    documentPayloadFrom(document),
	})
}

func (h *httpHandler) versionNumber(c *gin.Context) (int64, bool) {
	value, err := strconv.ParseInt(c.Param("versionNumber"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Version not found"})
		return 0, false
	}
	return value, true
}

// writeServiceError maps the service error taxonomy onto HTTP responses:
// validation failures carry a field-specific message, not-found and forbidden
// stay terse, and anything unexpected is logged server-side and surfaced as a
// generic server error.
func (h *httpHandler) writeServiceError(c *gin.Context, err error, forbiddenVerb string) {
	switch {
	case errors.Is(err, documents.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": validationMessage(err)})
	case errors.Is(err, documents.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Not authorized to " + forbiddenVerb})
	case errors.Is(err, documents.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": notFoundMessage(err)})
	default:
		h.logger.Error("document request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, documents.ErrInvalidTitle):
		return "Title must be between 1 and 100 characters"
	case errors.Is(err, documents.ErrInvalidPermission):
		return "Permission must be view or edit"
	case strings.Contains(errorCode(err), "missing_email"):
		return "Please provide an email or request a shareable link"
	default:
		return "Invalid request"
	}
}

func notFoundMessage(err error) string {
	code := errorCode(err)
	switch {
	case strings.HasSuffix(code, "version_not_found"):
		return "Version not found"
	case strings.HasSuffix(code, "user_not_found"):
		return "User not found"
	case strings.HasSuffix(code, "link_not_found"):
		return "Invalid or expired link"
	default:
		return "Document not found"
	}
}

func errorCode(err error) string {
	var serviceErr *documents.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
