// Package events registers the MQTT request handlers that let
// point-of-sale terminals use the coupon engine over the broker.
package events

import (
	"github.com/PancyStudios/DirectorioGo/pkg/auth"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/mqtt"
)

// Request topics, relative to mqtt.RequestPrefix
const (
	RedeemTopic = "coupons/redeem"
	StatusTopic = "coupons/status"
)

// RegisterAll registers every request handler on mc. Redemptions are
// refused when jwtSecret is empty.
func RegisterAll(mc *mqtt.MqttCommunicator, svc *coupons.Service, blocked auth.Blocklist, jwtSecret []byte) {
	logger.System("📋 Registrando handlers MQTT...", "Events")
	if len(jwtSecret) == 0 {
		logger.Warn("jwtSecret vacío: los canjes por MQTT serán rechazados", "Events")
	}

	mc.On(RedeemTopic, redeemHandler(svc, blocked, jwtSecret))
	mc.On(StatusTopic, statusHandler(svc))

	logger.Success("✅ Handlers MQTT registrados correctamente", "Events")
}
