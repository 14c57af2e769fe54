package mqtt

import (
	"fmt"
	"testing"

	"github.com/goccy/go-json"
)

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"directorio/coupons/+/created", "directorio/coupons/b1/created", true},
		{"directorio/coupons/+/+/redeemed", "directorio/coupons/b1/c1/redeemed", true},
		{"directorio/coupons/+/+/redeemed", "directorio/coupons/b1/created", false},
		{"directorio/coupons/#", "directorio/coupons/b1/c1/redeemed", true},
		{"directorio/coupons/#", "directorio/coupons", true},
		{"directorio/request/coupons/redeem", "directorio/request/coupons/redeem", true},
		{"directorio/request/coupons/redeem", "directorio/request/coupons", false},
		{"directorio/+", "directorio/a/b", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s~%s", tt.pattern, tt.topic), func(t *testing.T) {
			if got := topicMatch(tt.pattern, tt.topic); got != tt.want {
				t.Errorf("topicMatch(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
			}
		})
	}
}

func TestHandleRequest(t *testing.T) {
	raw, _ := json.Marshal(MqttRequest{
		CorrelationID: "abc",
		Payload:       json.RawMessage(`{"userId":"u1"}`),
	})

	var seen string
	responseTopic, response, ok := handleRequest(RequestPrefix+"coupons/redeem", raw, func(payload []byte) (interface{}, error) {
		var body struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		seen = body.UserID
		return "ok", nil
	})

	if !ok {
		t.Fatal("handleRequest() should answer")
	}
	if responseTopic != ResponsePrefix+"coupons/redeem/abc" {
		t.Errorf("responseTopic = %q", responseTopic)
	}
	if seen != "u1" || response.Data != "ok" || response.CorrelationID != "abc" {
		t.Errorf("unexpected response %+v (seen %q)", response, seen)
	}
}

func TestHandleRequestError(t *testing.T) {
	raw := []byte(`{"correlationId":"xyz"}`)

	_, response, ok := handleRequest(RequestPrefix+"coupons/redeem", raw, func(payload []byte) (interface{}, error) {
		return nil, fmt.Errorf("Ya utilizaste este cupón")
	})

	if !ok || response.Error != "Ya utilizaste este cupón" || response.Data != nil {
		t.Errorf("unexpected response %+v", response)
	}
}

func TestHandleRequestRejectsMalformed(t *testing.T) {
	called := false
	callback := func(payload []byte) (interface{}, error) {
		called = true
		return nil, nil
	}

	if _, _, ok := handleRequest(RequestPrefix+"x", []byte("not json"), callback); ok {
		t.Error("malformed request should not be answered")
	}
	if _, _, ok := handleRequest(RequestPrefix+"x", []byte(`{"payload":{}}`), callback); ok {
		t.Error("request without correlation id should not be answered")
	}
	if called {
		t.Error("callback must not run for rejected requests")
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	var mc *MqttCommunicator
	if mc.IsConnected() {
		t.Fatal("nil communicator must not be connected")
	}
	if err := (&MqttCommunicator{}).Publish("directorio/test", "x"); err == nil {
		t.Error("Publish without a client should fail")
	}
}
