package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	os.Setenv("jwtSecret", "test-secret")
	os.Setenv("PORT", "3001")
	os.Setenv("enviroment", "test")
	os.Setenv("redeemMaxAttempts", "9")
	defer func() {
		os.Unsetenv("jwtSecret")
		os.Unsetenv("PORT")
		os.Unsetenv("enviroment")
		os.Unsetenv("redeemMaxAttempts")
	}()

	resetForTesting()

	config, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if config.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %v, want %v", config.JWTSecret, "test-secret")
	}
	if config.Port != "3001" {
		t.Errorf("Port = %v, want %v", config.Port, "3001")
	}
	if config.Environment != "test" {
		t.Errorf("Environment = %v, want %v", config.Environment, "test")
	}
	if config.RedeemMaxAttempts != 9 {
		t.Errorf("RedeemMaxAttempts = %v, want %v", config.RedeemMaxAttempts, 9)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test-value")
	defer os.Unsetenv("TEST_VAR")

	if got := getEnv("TEST_VAR", "default"); got != "test-value" {
		t.Errorf("getEnv() = %v, want %v", got, "test-value")
	}
	if got := getEnv("NON_EXISTENT_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want %v", got, "default")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"7", 7},
		{"", 5},
		{"abc", 5},
		{"0", 5},
		{"-3", 5},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			os.Setenv("TEST_INT", tt.value)
			defer os.Unsetenv("TEST_INT")
			if got := getEnvInt("TEST_INT", 5); got != tt.want {
				t.Errorf("getEnvInt(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestIsProd(t *testing.T) {
	resetForTesting()
	os.Setenv("enviroment", "prod")
	config, _ := Load()

	if !config.IsProd() {
		t.Error("IsProd() should return true when environment is 'prod'")
	}

	resetForTesting()
	os.Setenv("enviroment", "dev")
	config, _ = Load()

	if config.IsProd() {
		t.Error("IsProd() should return false when environment is not 'prod'")
	}

	os.Unsetenv("enviroment")
}

func TestStoreDriver(t *testing.T) {
	resetForTesting()
	os.Setenv("storeDriver", "memory")
	defer os.Unsetenv("storeDriver")

	config, _ := Load()
	if !config.UsesMemoryStore() {
		t.Error("UsesMemoryStore() should return true when storeDriver is 'memory'")
	}
}

func TestGet(t *testing.T) {
	resetForTesting()

	config := Get()
	if config == nil {
		t.Fatal("Get() returned nil")
	}

	if config2 := Get(); config != config2 {
		t.Error("Get() should return the same config on subsequent calls")
	}
}

func TestDefaultValues(t *testing.T) {
	for _, key := range []string{"mongodbUrl", "dbName", "storeDriver", "MQTT_Host", "MQTT_Port", "PORT", "enviroment", "redeemMaxAttempts"} {
		os.Unsetenv(key)
	}

	resetForTesting()
	config, _ := Load()

	if config.MongoDBURL != "mongodb://localhost:27017" {
		t.Errorf("MongoDBURL default = %v, want %v", config.MongoDBURL, "mongodb://localhost:27017")
	}
	if config.DBName != "Directorio" {
		t.Errorf("DBName default = %v, want %v", config.DBName, "Directorio")
	}
	if config.StoreDriver != StoreMongo {
		t.Errorf("StoreDriver default = %v, want %v", config.StoreDriver, StoreMongo)
	}
	if config.MQTTHost != "localhost" {
		t.Errorf("MQTTHost default = %v, want %v", config.MQTTHost, "localhost")
	}
	if config.MQTTPort != "1883" {
		t.Errorf("MQTTPort default = %v, want %v", config.MQTTPort, "1883")
	}
	if config.Port != "3000" {
		t.Errorf("Port default = %v, want %v", config.Port, "3000")
	}
	if config.Environment != "dev" {
		t.Errorf("Environment default = %v, want %v", config.Environment, "dev")
	}
	if config.RedeemMaxAttempts != 5 {
		t.Errorf("RedeemMaxAttempts default = %v, want %v", config.RedeemMaxAttempts, 5)
	}
}
