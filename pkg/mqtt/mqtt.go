// Package mqtt provides MQTT communication for the service.
// It supports publish/subscribe and request/response over the broker.
package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topic prefixes for request/response
const (
	RequestPrefix  = "directorio/request/"
	ResponsePrefix = "directorio/response/"
)

const publishTimeout = 3 * time.Second

// MqttRequest represents an MQTT request message
type MqttRequest struct {
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// MqttResponse represents an MQTT response message
type MqttResponse struct {
	CorrelationID string      `json:"correlationId"`
	Data          interface{} `json:"data"`
	Error         string      `json:"error,omitempty"`
}

// RequestHandler handles the raw payload of a request
type RequestHandler func(payload []byte) (interface{}, error)

// MessageHandler handles a message received on a subscribed topic
type MessageHandler func(topic string, payload []byte)

// MqttCommunicator handles MQTT communication
type MqttCommunicator struct {
	client        mqtt.Client
	subscriptions map[string]mqtt.MessageHandler
	mu            sync.RWMutex
	clientID      string
}

var (
	communicator *MqttCommunicator
	once         sync.Once
)

// Init initializes the global MQTT communicator
func Init(host, port, username, password, clientID string) *MqttCommunicator {
	once.Do(func() {
		communicator = NewMqttCommunicator(host, port, username, password, clientID)
	})
	return communicator
}

// Get returns the global MQTT communicator
func Get() *MqttCommunicator {
	return communicator
}

// NewMqttCommunicator creates a new MQTT communicator and connects it
func NewMqttCommunicator(host, port, username, password, clientID string) *MqttCommunicator {
	mc := &MqttCommunicator{
		subscriptions: make(map[string]mqtt.MessageHandler),
		clientID:      clientID,
	}

	uniqueID := fmt.Sprintf("%s_%s", clientID, uuid.New().String())

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port)).
		SetClientID(uniqueID).
		SetUsername(username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetDefaultPublishHandler(func(c mqtt.Client, msg mqtt.Message) {
			mc.dispatch(c, msg)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Success(fmt.Sprintf("Conectado al broker MQTT como %s", clientID), "MQTT")
			mc.resubscribe()
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Error(fmt.Sprintf("Conexión MQTT perdida: %v", err), "MQTT")
		})

	mc.client = mqtt.NewClient(opts)

	token := mc.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		logger.Error(fmt.Sprintf("Error de conexión MQTT: %v", token.Error()), "MQTT")
	}

	return mc
}

// Destroy closes the MQTT connection
func (mc *MqttCommunicator) Destroy() {
	if mc.client != nil && mc.client.IsConnected() {
		mc.client.Disconnect(250)
		logger.System("Conexión MQTT cerrada exitosamente.", "MQTT")
	} else {
		logger.Warn("El cliente MQTT no estaba conectado, no se necesita cerrar.", "MQTT")
	}
}

// IsConnected returns true if connected to the broker
func (mc *MqttCommunicator) IsConnected() bool {
	return mc != nil && mc.client != nil && mc.client.IsConnected()
}

// Publish sends a JSON message to a topic
func (mc *MqttCommunicator) Publish(topic string, payload interface{}) error {
	if !mc.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := mc.client.Publish(topic, 0, false, jsonData)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// subscribe registers handler so it survives reconnects
func (mc *MqttCommunicator) subscribe(topic string, handler mqtt.MessageHandler) error {
	mc.mu.Lock()
	mc.subscriptions[topic] = handler
	mc.mu.Unlock()

	token := mc.client.Subscribe(topic, 0, handler)
	token.Wait()
	return token.Error()
}

func (mc *MqttCommunicator) resubscribe() {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	for topic, handler := range mc.subscriptions {
		token := mc.client.Subscribe(topic, 0, handler)
		if token.Wait() && token.Error() != nil {
			logger.Error(fmt.Sprintf("Error al resuscribir %s: %v", topic, token.Error()), "MQTT")
		}
	}
}

// dispatch routes messages paho could not match to a handler
func (mc *MqttCommunicator) dispatch(c mqtt.Client, msg mqtt.Message) {
	mc.mu.RLock()
	var matched []mqtt.MessageHandler
	for pattern, handler := range mc.subscriptions {
		if topicMatch(pattern, msg.Topic()) {
			matched = append(matched, handler)
		}
	}
	mc.mu.RUnlock()

	if len(matched) == 0 {
		logger.Debug(fmt.Sprintf("Mensaje sin suscriptor en %s", msg.Topic()), "MQTT")
		return
	}
	for _, handler := range matched {
		handler(c, msg)
	}
}

// Request sends a request and waits for a response
func (mc *MqttCommunicator) Request(topic string, payload interface{}, timeout time.Duration) (interface{}, error) {
	if !mc.IsConnected() {
		return nil, fmt.Errorf("mqtt not connected")
	}

	correlationID := uuid.New().String()
	requestTopic := RequestPrefix + topic
	responseTopic := fmt.Sprintf("%s%s/%s", ResponsePrefix, topic, correlationID)

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	responseChan := make(chan MqttResponse, 1)
	errChan := make(chan error, 1)

	defer mc.client.Unsubscribe(responseTopic)

	token := mc.client.Subscribe(responseTopic, 0, func(c mqtt.Client, msg mqtt.Message) {
		var response MqttResponse
		if err := json.Unmarshal(msg.Payload(), &response); err != nil {
			select {
			case errChan <- err:
			default:
			}
			return
		}
		if response.CorrelationID != correlationID {
			return
		}
		select {
		case responseChan <- response:
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	request := MqttRequest{
		CorrelationID: correlationID,
		Payload:       rawPayload,
	}
	if err := mc.Publish(requestTopic, request); err != nil {
		return nil, err
	}

	select {
	case response := <-responseChan:
		if response.Error != "" {
			return nil, fmt.Errorf("%s", response.Error)
		}
		return response.Data, nil
	case err := <-errChan:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("la petición a '%s' ha expirado (timeout)", topic)
	}
}

// handleRequest runs callback for a raw request received on
// receivedTopic and builds the reply. ok is false when the request
// cannot be answered.
func handleRequest(receivedTopic string, raw []byte, callback RequestHandler) (responseTopic string, response MqttResponse, ok bool) {
	var request MqttRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		logger.Error(fmt.Sprintf("Error parsing MQTT request: %v", err), "MQTT")
		return "", MqttResponse{}, false
	}
	if request.CorrelationID == "" {
		logger.Warn(fmt.Sprintf("Petición sin correlationId en %s", receivedTopic), "MQTT")
		return "", MqttResponse{}, false
	}

	actualTopic := strings.TrimPrefix(receivedTopic, RequestPrefix)
	responseTopic = fmt.Sprintf("%s%s/%s", ResponsePrefix, actualTopic, request.CorrelationID)

	data, err := callback(request.Payload)
	if err != nil {
		return responseTopic, MqttResponse{CorrelationID: request.CorrelationID, Error: err.Error()}, true
	}
	return responseTopic, MqttResponse{CorrelationID: request.CorrelationID, Data: data}, true
}

// On registers a handler for a request topic
func (mc *MqttCommunicator) On(requestTopic string, callback RequestHandler) {
	topic := RequestPrefix + requestTopic

	err := mc.subscribe(topic, func(c mqtt.Client, msg mqtt.Message) {
		defer errors.RecoverMiddleware()()

		responseTopic, response, ok := handleRequest(msg.Topic(), msg.Payload(), callback)
		if !ok {
			return
		}
		if err := mc.Publish(responseTopic, response); err != nil {
			logger.Error(fmt.Sprintf("Error enviando respuesta a %s: %v", responseTopic, err), "MQTT")
		}
	})
	if err != nil {
		logger.Error(fmt.Sprintf("Error subscribing to topic %s: %v", topic, err), "MQTT")
	}
}

// Subscribe subscribes to a topic with a message handler
func (mc *MqttCommunicator) Subscribe(topic string, handler MessageHandler) error {
	return mc.subscribe(topic, func(c mqtt.Client, msg mqtt.Message) {
		defer errors.RecoverMiddleware()()
		handler(msg.Topic(), msg.Payload())
	})
}

// Unsubscribe unsubscribes from a topic
func (mc *MqttCommunicator) Unsubscribe(topic string) error {
	mc.mu.Lock()
	delete(mc.subscriptions, topic)
	mc.mu.Unlock()

	token := mc.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

// topicMatch checks if a received topic matches a pattern (with wildcards)
// '+' matches exactly one topic level
// '#' matches zero or more topic levels and must be the last character
func topicMatch(pattern, topic string) bool {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	patternLen := len(patternParts)
	topicLen := len(topicParts)

	for i := 0; i < patternLen; i++ {
		if patternParts[i] == "#" {
			return true
		}
		if i >= topicLen {
			return false
		}
		if patternParts[i] == "+" {
			continue
		}
		if patternParts[i] != topicParts[i] {
			return false
		}
	}

	return patternLen == topicLen
}
