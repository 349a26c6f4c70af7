package websocket

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events/bus"
	"github.com/sparkq/sparkq/internal/queue/service"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

// Gateway bundles the live-feed components: the hub, the request
// dispatcher, and the HTTP upgrade handler.
type Gateway struct {
	Hub        *Hub
	Dispatcher *ws.Dispatcher
	Handler    *Handler

	eventBus  bus.EventBus
	forwarder *FeedForwarder
	logger    *logger.Logger
}

// NewGateway wires the feed gateway against the queue service and bus.
func NewGateway(svc *service.Service, eventBus bus.EventBus, log *logger.Logger) *Gateway {
	dispatcher := ws.NewDispatcher()
	hub := NewHub(dispatcher, log)
	handler := NewHandler(hub, log)

	g := &Gateway{
		Hub:        hub,
		Dispatcher: dispatcher,
		Handler:    handler,
		eventBus:   eventBus,
		logger:     log,
	}
	g.registerHandlers(svc)
	return g
}

func (g *Gateway) registerHandlers(svc *service.Service) {
	g.Dispatcher.RegisterFunc(ws.ActionHealthCheck, func(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
		return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
			"status":  "ok",
			"service": "sparkq",
			"clients": g.Hub.ClientCount(),
		})
	})

	g.Dispatcher.RegisterFunc(ws.ActionStatsProject, func(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
		stats, err := svc.ProjectStats(ctx)
		if err != nil {
			return nil, err
		}
		return ws.NewResponse(msg.ID, msg.Action, stats)
	})
}

// Run starts the event forwarder and the hub loop. It blocks until ctx is
// cancelled.
func (g *Gateway) Run(ctx context.Context) {
	g.forwarder = ForwardBusEvents(ctx, g.eventBus, g.Hub, g.logger)
	g.Hub.Run(ctx)
}

// SetupRoutes adds the feed endpoint to the Gin engine.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET("/ws", g.Handler.HandleConnection)
}
