package http

import (
	"context"

	"github.com/dkeye/roomrelay/internal/adapters/signal"
	"github.com/dkeye/roomrelay/internal/app/orch"
	"github.com/dkeye/roomrelay/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Endpoints are the two independent protocol namespaces.
type Endpoints struct {
	MCP       *orch.Orchestrator
	Signaling *orch.Orchestrator
}

const clientTokenKey = "client_token"

// ClientTokenMiddleware gives every browser a stable token kept in the
// signed session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("client token not saved")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ep Endpoints, rtcCfg webrtc.Configuration) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(ClientTokenMiddleware())

	opts := signal.OptionsFromConfig(cfg)
	mount(ctx, r, "/ws/mcp", signal.NewSignalWSController(ep.MCP, opts))
	mount(ctx, r, "/ws/signaling", signal.NewSignalWSController(ep.Signaling, opts))

	h := &handlers{node: cfg.NodeID, ep: ep, rtc: rtcCfg}
	r.GET("/health", h.health)
	api := r.Group("/api")
	api.GET("/rooms", h.rooms)
	api.GET("/ice-servers", h.iceServers)

	log.Info().Str("module", "adapters.http").Str("node", cfg.NodeID).Msg("router setup")
	return r
}

// mount serves the endpoint with and without the trailing slash; websocket
// clients do not follow gin's redirect.
func mount(ctx context.Context, r *gin.Engine, path string, ctrl *signal.SignalWSController) {
	handle := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("path", path).Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	}
	r.GET(path, handle)
	r.GET(path+"/", handle)
}
