package public

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WatchMessage is what watchers receive on every change
type WatchMessage struct {
	Type   string      `json:"type"` // "update" o "deleted"
	Coupon *CouponView `json:"coupon,omitempty"`
}

// watchHandler upgrades to a websocket and streams the coupon until
// the client leaves or the coupon is deleted
func watchHandler(svc *coupons.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		couponID := c.Param("id")

		// fail with a normal HTTP error before upgrading
		if _, err := svc.Get(c.Request.Context(), couponID); err != nil {
			web.RespondError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn(fmt.Sprintf("No se pudo abrir el websocket: %v", err), "Watch")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sub, err := svc.Watch(ctx, couponID)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
				time.Now().Add(writeWait))
			return
		}
		defer sub.Close()

		// the reader only exists to notice the client going away
		errors.Go(func() {
			defer cancel()
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		})

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case snapshot := <-sub.C:
				msg := WatchMessage{Type: "deleted"}
				if snapshot != nil {
					view := NewCouponView(snapshot)
					msg = WatchMessage{Type: "update", Coupon: &view}
				}
				if err := writeJSON(conn, msg); err != nil {
					return
				}
				if snapshot == nil {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "cupón eliminado"),
						time.Now().Add(writeWait))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
