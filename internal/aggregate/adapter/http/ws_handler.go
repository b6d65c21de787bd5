package http

import (
	"context"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/eventbus"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 16
)

// RefreshMessage is pushed to websocket clients after each refresh attempt
type RefreshMessage struct {
	Type string             `json:"type"`
	Data model.RefreshEvent `json:"data"`
}

// RefreshStreamHandler streams commons refresh events over a websocket
type RefreshStreamHandler struct {
	bus eventbus.Bus
	log logger.Logger
}

// NewRefreshStreamHandler creates the handler
func NewRefreshStreamHandler(bus eventbus.Bus, log logger.Logger) *RefreshStreamHandler {
	return &RefreshStreamHandler{bus: bus, log: log.WithComponent("aggregate-ws")}
}

// RegisterRoutes mounts GET /aggregate/ws. ?commons=N limits the stream to
// one commons.
func (h *RefreshStreamHandler) RegisterRoutes(router fiber.Router) {
	router.Use("/aggregate/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("commons", fiberutils.CopyString(c.Query("commons")))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/aggregate/ws", websocket.New(h.stream))
}

func (h *RefreshStreamHandler) stream(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientID := uuid.NewString()
	only, _ := conn.Locals("commons").(string)
	log := h.log.WithFields(map[string]interface{}{"client_id": clientID})
	log.Info("Refresh stream opened", "commons", only)

	events := make(chan RefreshMessage, wsBuffer)
	forward := func(_ context.Context, ev eventbus.Event) error {
		re, ok := ev.Data().(model.RefreshEvent)
		if !ok || (only != "" && re.Commons != only) {
			return nil
		}
		select {
		case events <- RefreshMessage{Type: ev.Type(), Data: re}:
		default:
			log.Warn("Dropping refresh event for slow client", "commons", re.Commons)
		}
		return nil
	}
	unsubRefreshed := h.bus.Subscribe(model.EventCommonsRefreshed, forward)
	unsubFailed := h.bus.Subscribe(model.EventCommonsFailed, forward)
	defer unsubRefreshed()
	defer unsubFailed()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					log.Warn("Refresh stream write failed", "error", err)
					return
				}
			}
		}
	}()

	// reading detects disconnects; client messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Refresh stream closed unexpectedly", "error", err)
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	log.Info("Refresh stream closed")
}
