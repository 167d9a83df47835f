package handler

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

// AuthConfig holds what the staff endpoints need to issue and check tokens.
type AuthConfig struct {
	SigningKey  string
	Issuer      string
	TTL         time.Duration
	StaffAPIKey string
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the attendance HTTP API.
type Handler struct {
	store     attendance.Store
	issuer    *attendance.Issuer
	validator *attendance.Validator
	recorder  *attendance.Recorder
	auth      AuthConfig
	health    map[string]HealthCheck
	now       func() time.Time
	log       *zap.Logger
}

// New wires a handler. health may be nil.
func New(store attendance.Store, issuer *attendance.Issuer, validator *attendance.Validator,
	recorder *attendance.Recorder, authCfg AuthConfig, health map[string]HealthCheck, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:     store,
		issuer:    issuer,
		validator: validator,
		recorder:  recorder,
		auth:      authCfg,
		health:    health,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// Templates parses the embedded HTML pages.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// Register mounts the routes on r. Public redemption routes pass through
// redeemMW (rate limiting); staff routes require a staff JWT.
func (h *Handler) Register(r gin.IRouter, redeemMW ...gin.HandlerFunc) {
	registerValidators()

	r.GET("/healthz", h.Healthz)
	r.POST("/auth/token", h.IssueStaffToken)

	public := r.Group("/sessions/:id", redeemMW...)
	public.GET("/verify", h.Verify)
	public.GET("/redeem", h.RedeemForm)
	public.POST("/redeem", h.Redeem)

	staff := r.Group("/", auth.StaffAuth(h.auth.SigningKey, h.auth.Issuer))
	staff.POST("/sessions", h.CreateSession)
	staff.GET("/sessions", h.ListSessions)
	staff.GET("/sessions/:id/records", h.ListRecords)
	staff.GET("/sessions/:id/stats", h.SessionStats)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	storeOK := h.store.Ping(ctx) == nil
	body["store"] = storeOK
	if !storeOK {
		status = http.StatusServiceUnavailable
	}
	for name, check := range h.health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ---------- Staff ----------

type tokenRequest struct {
	StaffID string `json:"staff_id" binding:"required,max=64"`
	APIKey  string `json:"api_key" binding:"required"`
}

// IssueStaffToken exchanges the shared staff API key for a short-lived JWT.
func (h *Handler) IssueStaffToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "staff_id and api_key are required"})
		return
	}
	if !auth.APIKeyMatches(h.auth.StaffAPIKey, req.APIKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	tok, err := auth.Issue(req.StaffID, auth.RoleStaff, h.auth.Issuer, h.auth.SigningKey, h.auth.TTL, h.now())
	if err != nil {
		h.log.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": tok.Token, "expires_at": tok.ExpiresAt.Unix()})
}

// CreateSession issues a new attendance session and its QR artifact.
func (h *Handler) CreateSession(c *gin.Context) {
	issued, err := h.issuer.CreateSession(c.Request.Context())
	if err != nil {
		h.log.Error("create session failed", zap.Error(err))
		unavailableJSON(c)
		return
	}

	body := gin.H{
		"session_id":   issued.Session.ID,
		"expires_at":   issued.Session.ExpiresAt,
		"redeem_url":   issued.RedeemURL,
		"qr_image_ref": issued.ImageRef,
	}
	if issued.EncodeErr != nil {
		body["qr_error"] = "QR image unavailable; share the redeem link instead."
	}
	h.log.Info("session created",
		zap.Int64("session_id", issued.Session.ID),
		zap.Time("expires_at", issued.Session.ExpiresAt),
		zap.Bool("qr_rendered", issued.ImageRef != ""))
	c.JSON(http.StatusCreated, body)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListSessions returns recent sessions, newest first. limit is clamped to
// maxListLimit; unparsable or non-positive values fall back to the default.
func (h *Handler) ListSessions(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}
	sessions, err := h.store.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list sessions failed", zap.Error(err))
		unavailableJSON(c)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ListRecords returns a session's attendance, oldest first.
func (h *Handler) ListRecords(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		rejectJSON(c, attendance.OutcomeNotFound)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetSession(ctx, id); err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			rejectJSON(c, attendance.OutcomeNotFound)
			return
		}
		h.log.Error("get session failed", zap.Int64("session_id", id), zap.Error(err))
		unavailableJSON(c)
		return
	}
	records, err := h.store.ListRecords(ctx, id)
	if err != nil {
		h.log.Error("list records failed", zap.Int64("session_id", id), zap.Error(err))
		unavailableJSON(c)
		return
	}
	if records == nil {
		records = []attendance.RecordView{}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "records": records})
}

// SessionStats is the live counter view staff poll while the QR code is shown.
func (h *Handler) SessionStats(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		rejectJSON(c, attendance.OutcomeNotFound)
		return
	}
	stats, err := attendance.Stats(c.Request.Context(), h.store, id, h.now())
	if errors.Is(err, attendance.ErrNotFound) {
		rejectJSON(c, attendance.OutcomeNotFound)
		return
	}
	if err != nil {
		h.log.Error("session stats failed", zap.Int64("session_id", id), zap.Error(err))
		unavailableJSON(c)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ---------- Students ----------

// Verify is a side-effect free pre-check for scanning clients.
func (h *Handler) Verify(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"ok": false, "reason": attendance.OutcomeNotFound, "message": attendance.OutcomeNotFound.Message()})
		return
	}
	res, err := h.validator.Validate(c.Request.Context(), id, c.Query("token"), h.now())
	if err != nil {
		h.log.Error("verify failed", zap.Int64("session_id", id), zap.Error(err))
		unavailableJSON(c)
		return
	}
	if !res.OK {
		c.JSON(http.StatusOK, gin.H{"ok": false, "reason": res.Reason, "message": res.Reason.Message()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session_id": res.Session.ID, "expires_at": res.Session.ExpiresAt})
}

type redeemPage struct {
	OK        bool
	ShowForm  bool
	Message   string
	SessionID int64
	Token     string
	ExpiresAt string
}

// RedeemForm renders the confirmation form, or the rejection reason.
func (h *Handler) RedeemForm(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		c.HTML(http.StatusNotFound, "redeem.html", redeemPage{Message: attendance.OutcomeNotFound.Message()})
		return
	}
	token := c.Query("token")
	res, err := h.validator.Validate(c.Request.Context(), id, token, h.now())
	if err != nil {
		h.log.Error("redeem form validation failed", zap.Int64("session_id", id), zap.Error(err))
		c.Header("Retry-After", "1")
		c.HTML(http.StatusServiceUnavailable, "redeem.html", redeemPage{Message: attendance.OutcomeError.Message()})
		return
	}
	if !res.OK {
		c.HTML(statusFor(res.Reason), "redeem.html", redeemPage{Message: res.Reason.Message()})
		return
	}
	c.HTML(http.StatusOK, "redeem.html", redeemPage{
		OK:        true,
		ShowForm:  true,
		SessionID: id,
		Token:     token,
		ExpiresAt: res.Session.ExpiresAt.Format(time.RFC3339),
	})
}

type redeemRequest struct {
	RollNumber string `json:"roll_number" form:"roll_number" binding:"max=64,rollnumber"`
	Name       string `json:"name" form:"name" binding:"max=128"`
	Token      string `json:"token" form:"token"`
}

// Redeem records attendance for the submitted student.
func (h *Handler) Redeem(c *gin.Context) {
	html := c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML

	id, ok := sessionID(c)
	if !ok {
		respondRedeem(c, html, attendance.RecordResult{Status: attendance.OutcomeNotFound, Message: attendance.OutcomeNotFound.Message()})
		return
	}

	var req redeemRequest
	if err := c.ShouldBind(&req); err != nil {
		respondRedeem(c, html, attendance.RecordResult{Status: attendance.OutcomeInvalid, Message: "Roll number or name is not valid."})
		return
	}
	token := c.Query("token")
	if token == "" {
		token = req.Token
	}

	res, err := h.recorder.Record(c.Request.Context(), attendance.RecordInput{
		SessionID:  id,
		Token:      token,
		RollNumber: req.RollNumber,
		Name:       req.Name,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		h.log.Error("redeem failed", zap.Int64("session_id", id), zap.Error(err))
		c.Header("Retry-After", "1")
		res = attendance.RecordResult{Status: attendance.OutcomeError, Message: attendance.OutcomeError.Message()}
	}
	respondRedeem(c, html, res)
}

func respondRedeem(c *gin.Context, html bool, res attendance.RecordResult) {
	code := statusFor(res.Status)
	if html {
		ok := res.Status == attendance.OutcomeRecorded || res.Status == attendance.OutcomeAlreadyRecorded
		c.HTML(code, "redeem.html", redeemPage{OK: ok, Message: res.Message})
		return
	}
	c.JSON(code, gin.H{"status": res.Status, "message": res.Message})
}

// statusFor maps an outcome to its HTTP status code.
func statusFor(o attendance.Outcome) int {
	switch o {
	case attendance.OutcomeOK, attendance.OutcomeAlreadyRecorded:
		return http.StatusOK
	case attendance.OutcomeRecorded:
		return http.StatusCreated
	case attendance.OutcomeNotFound:
		return http.StatusNotFound
	case attendance.OutcomeTokenMismatch:
		return http.StatusForbidden
	case attendance.OutcomeExpired:
		return http.StatusGone
	case attendance.OutcomeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func rejectJSON(c *gin.Context, o attendance.Outcome) {
	c.JSON(statusFor(o), gin.H{"error": o.Message(), "reason": o})
}

func unavailableJSON(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": attendance.OutcomeError.Message()})
}
