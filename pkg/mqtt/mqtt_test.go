package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/telemetry-bridge/internal/mocks"
)

func TestNewClientOptions_PersistentSession(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)

	opts, err := NewClientOptions(ClientConfig{
		Broker:               "tcp://broker:1883",
		ClientID:             "bridge-1",
		Username:             "drone",
		Password:             "secret",
		KeepAlive:            20 * time.Second,
		ConnectTimeout:       5 * time.Second,
		MaxReconnectInterval: time.Minute,
	}, fileClient)
	require.NoError(t, err)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "bridge-1", opts.ClientID)
	assert.Equal(t, "drone", opts.Username)
	assert.False(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.Order, "handlers run in arrival order")
	assert.True(t, opts.ConnectRetry)
	assert.Equal(t, int64(20), opts.KeepAlive)
	assert.Equal(t, 5*time.Second, opts.ConnectTimeout)
	assert.Equal(t, time.Minute, opts.MaxReconnectInterval)
	assert.Nil(t, opts.TLSConfig)
	fileClient.AssertNotCalled(t, "ReadFileRaw")
}

func TestNewClientOptions_CACertificateReadFailure(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "/etc/bridge/ca.pem").Return(nil, errors.New("permission denied"))

	_, err := NewClientOptions(ClientConfig{
		Broker:        "ssl://broker:8883",
		ClientID:      "bridge-1",
		CACertificate: "/etc/bridge/ca.pem",
	}, fileClient)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA certificate")
	fileClient.AssertExpectations(t)
}

func TestNewClientOptions_InvalidCACertificate(t *testing.T) {
	fileClient := new(mocks.MockFileOperations)
	fileClient.On("ReadFileRaw", "/etc/bridge/ca.pem").Return([]byte("not a certificate"), nil)

	_, err := NewClientOptions(ClientConfig{
		Broker:        "ssl://broker:8883",
		ClientID:      "bridge-1",
		CACertificate: "/etc/bridge/ca.pem",
	}, fileClient)
	assert.EqualError(t, err, "failed to append CA certificate")
}
