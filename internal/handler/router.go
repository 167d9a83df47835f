package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campusattend/internal/httpmiddleware"
)

// ArtifactPath is the URL prefix rendered QR images are served from.
const ArtifactPath = "/qrcodes"

// RouterConfig holds the optional pieces of the HTTP stack.
type RouterConfig struct {
	Limiter     httpmiddleware.Limiter
	ArtifactDir string
	Log         *zap.Logger
}

// NewRouter builds the gin engine with middleware, metrics, artifacts and
// the attendance routes.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())
	r.SetHTMLTemplate(Templates())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.ArtifactDir != "" {
		r.Static(ArtifactPath, cfg.ArtifactDir)
	}

	var redeemMW []gin.HandlerFunc
	if cfg.Limiter != nil {
		redeemMW = append(redeemMW, httpmiddleware.RateLimit(cfg.Limiter, log))
	}
	h.Register(r, redeemMW...)
	return r
}
