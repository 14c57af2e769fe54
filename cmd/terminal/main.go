// Package main is a point-of-sale terminal that talks to the coupon
// engine over MQTT.
//
// Usage:
//   go run cmd/terminal/main.go [options]
//
// Options:
//   -token <jwt>     Identity token of the user redeeming the coupon
//   -coupon <id>     Redeem by coupon id
//   -business <id>   Business of the code (with -code) or to follow (with -follow)
//   -code <code>     Redeem by code
//   -status <id>     Show the current state of a coupon
//   -follow          Print every redemption of -business until interrupted
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PancyStudios/DirectorioGo/internal/events"
	"github.com/PancyStudios/DirectorioGo/pkg/config"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/mqtt"
	"github.com/goccy/go-json"
)

const requestTimeout = 15 * time.Second

func main() {
	// Parse command line flags
	token := flag.String("token", "", "Identity token of the user redeeming the coupon")
	couponID := flag.String("coupon", "", "Redeem by coupon id")
	businessID := flag.String("business", "", "Business of the code or to follow")
	code := flag.String("code", "", "Redeem by code")
	statusID := flag.String("status", "", "Show the current state of a coupon")
	follow := flag.Bool("follow", false, "Print every redemption of -business")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	mc := mqtt.NewMqttCommunicator(cfg.MQTTHost, cfg.MQTTPort, cfg.MQTTUser, cfg.MQTTPassword, "directorio_terminal")
	defer mc.Destroy()

	switch {
	case *follow:
		err = followRedemptions(mc, *businessID)
	case *statusID != "":
		err = request(mc, events.StatusTopic, events.StatusRequest{CouponID: *statusID})
	case *couponID != "" || *code != "":
		err = request(mc, events.RedeemTopic, events.RedeemRequest{
			Token:      *token,
			CouponID:   *couponID,
			BusinessID: *businessID,
			Code:       *code,
		})
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error(err.Error(), "Terminal")
		os.Exit(1)
	}
}

// request sends payload to topic and prints the reply
func request(mc *mqtt.MqttCommunicator, topic string, payload interface{}) error {
	data, err := mc.Request(topic, payload, requestTimeout)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// followRedemptions prints redemption events until interrupted
func followRedemptions(mc *mqtt.MqttCommunicator, businessID string) error {
	if businessID == "" {
		return fmt.Errorf("-follow requires -business")
	}

	topic := coupons.RedeemedTopic(businessID, "+")
	err := mc.Subscribe(topic, func(_ string, payload []byte) {
		var event coupons.RedeemedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.Warn(fmt.Sprintf("Evento ilegible: %v", err), "Terminal")
			return
		}
		logger.Info(fmt.Sprintf("🎟️ %s canjeó %s (%d/%d)", event.UserID, event.Code, event.CurrentUses, event.MaxUses), "Terminal")
	})
	if err != nil {
		return err
	}
	defer func() { _ = mc.Unsubscribe(topic) }()

	logger.System(fmt.Sprintf("Escuchando canjes de %s...", businessID), "Terminal")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	return nil
}
