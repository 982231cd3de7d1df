package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "inkwell_user_id"
	userRoleContextKey = "inkwell_user_role"
	accountContextKey  = "inkwell_account"

	opRequest      = "request"
	opIssueSession = "session.issue"

	reasonInvalidAuthorization = "invalid_authorization"
	reasonInvalidSession       = "invalid_session"
	reasonAdminRequired        = "admin_required"
	reasonInvalidJSON          = "invalid_json"
	reasonInvalidNoteID        = "invalid_note_id"
	reasonInvalidIndex         = "invalid_index"
	reasonInvalidWordKey       = "invalid_word_key"
	reasonTokenIssueFailed     = "token_issue_failed"

	defaultVersion = "dev"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates session tokens.
type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, principal auth.Principal) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

type Dependencies struct {
	TokenManager   SessionTokenManager
	NotesService   *notes.Service
	UsersService   *users.Service
	AllowedOrigins []string
	Version        string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := strings.TrimSpace(deps.Version)
	if version == "" {
		version = defaultVersion
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		notesService: deps.NotesService,
		usersService: deps.UsersService,
		version:      version,
		logger:       logger,
	}

	router.GET("/", handler.handleHealth)
	router.POST("/register", handler.handleRegister)
	router.POST("/login", handler.handleLogin)
	router.POST("/admin/login", handler.handleAdminLogin)
	router.GET("/shared/:token", handler.handleGetSharedNote)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/user", handler.handleCurrentUser)
	protected.PUT("/profile", handler.handleUpdateProfile)
	protected.POST("/logout", handler.handleLogout)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/notes/:id/words", handler.handleNoteWords)
	protected.POST("/notes/:id/pages", handler.handleAddPage)
	protected.DELETE("/notes/:id/pages/:page", handler.handleDeletePage)
	protected.POST("/notes/:id/quotes", handler.handleInsertQuote)
	protected.PUT("/notes/:id/pages/:page/blocks/:block/quote", handler.handleEditQuote)
	protected.DELETE("/notes/:id/pages/:page/blocks/:block", handler.handleDeleteQuote)
	protected.PUT("/notes/:id/comments/:key", handler.handleSetComment)
	protected.DELETE("/notes/:id/comments/:key", handler.handleDeleteComment)
	protected.POST("/notes/:id/share", handler.handleCreateShare)
	protected.DELETE("/notes/:id/share", handler.handleDeleteShare)
	protected.POST("/shared/:token/import", handler.handleImportShare)

	admin := protected.Group("/admin")
	admin.Use(handler.requireAdmin)
	admin.GET("/users", handler.handleListUsers)
	admin.POST("/users", handler.handleAdminCreateUser)
	admin.PUT("/users/:id/password", handler.handleAdminUpdatePassword)
	admin.DELETE("/users/:id", handler.handleAdminDeleteUser)

	return router, nil
}

type httpHandler struct {
	tokens       SessionTokenManager
	notesService *notes.Service
	usersService *users.Service
	version      string
	logger       *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

// requestLogger logs the route template rather than the raw path so share
// tokens never reach the logs.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if !strings.HasPrefix(header, "Bearer ") || token == "" {
		h.respondError(c, apperrors.New(opRequest, reasonInvalidAuthorization, apperrors.Wrap(apperrors.ErrUnauthorized, "%s", errInvalidAuthorization.Error())))
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		h.respondError(c, apperrors.New(opRequest, reasonInvalidSession, apperrors.Wrap(apperrors.ErrUnauthorized, "session token rejected")))
		return
	}

	// A token outlives neither its account nor a revocation.
	account, err := h.usersService.GetUser(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.respondError(c, apperrors.New(opRequest, reasonInvalidSession, apperrors.Wrap(apperrors.ErrUnauthorized, "account no longer exists")))
			return
		}
		h.respondError(c, err)
		return
	}
	if account.SessionVersion != claims.SessionVersion {
		h.logger.Info("revoked session presented", zap.String("user_id", account.UserID))
		h.respondError(c, apperrors.New(opRequest, reasonInvalidSession, apperrors.Wrap(apperrors.ErrUnauthorized, "session has been revoked")))
		return
	}

	c.Set(userIDContextKey, claims.Subject)
	c.Set(userRoleContextKey, claims.Role)
	c.Set(accountContextKey, account)
	c.Next()
}

// requireAdmin accepts a caller only when both the session role and the
// stored account carry the admin role.
func (h *httpHandler) requireAdmin(c *gin.Context) {
	forbidden := apperrors.New(opRequest, reasonAdminRequired, apperrors.Wrap(apperrors.ErrForbidden, "administrator role required"))
	if c.GetString(userRoleContextKey) != string(users.RoleAdmin) {
		h.respondError(c, forbidden)
		return
	}
	value, _ := c.Get(accountContextKey)
	account, ok := value.(users.User)
	if !ok || !account.IsAdmin() {
		h.respondError(c, forbidden)
		return
	}
	c.Next()
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)
	body := gin.H{"error": string(kind)}

	var serviceErr *apperrors.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status != http.StatusInternalServerError {
		if serviceErr != nil {
			body["message"] = serviceErr.Detail()
		} else {
			body["message"] = err.Error()
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case apperrors.KindInvalidOperation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func invalidRequest(reason string, format string, args ...any) error {
	return apperrors.New(opRequest, reason, apperrors.Wrap(apperrors.ErrInvalidInput, format, args...))
}

// bindJSON decodes the request body into target and reports InvalidInput on malformed JSON.
func (h *httpHandler) bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		h.respondError(c, invalidRequest(reasonInvalidJSON, "malformed request body: %v", err))
		return false
	}
	return true
}

func (h *httpHandler) currentUserID(c *gin.Context) (notes.UserID, bool) {
	userID, err := notes.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, apperrors.New(opRequest, reasonInvalidSession, apperrors.Wrap(apperrors.ErrUnauthorized, "session subject missing")))
		return "", false
	}
	return userID, true
}

// noteRequest resolves the caller and the :id note parameter.
func (h *httpHandler) noteRequest(c *gin.Context) (notes.UserID, notes.NoteID, bool) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return "", "", false
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, invalidRequest(reasonInvalidNoteID, "%v", err))
		return "", "", false
	}
	return userID, noteID, true
}

func (h *httpHandler) indexParam(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		h.respondError(c, invalidRequest(reasonInvalidIndex, "%s must be a non-negative integer, got %q", name, raw))
		return 0, false
	}
	return value, true
}
