package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/localgw/gatewaycore/internal/observer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRepublishesConfigChangedOnEdit(t *testing.T) {
	path := writeConfig(t, "gateway_api_key: secret\nlisten_addr: \":8080\"\n")

	bus := observer.New(4)
	sub := bus.Subscribe(func(e observer.Event) bool { return e.Type == observer.ConfigChanged })

	w, err := NewWatcher(path, bus, nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", w.Current().ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("gateway_api_key: secret\nlisten_addr: \":9999\"\n"), 0o600))

	select {
	case e := <-sub.Events():
		cfg := e.Payload.(Config)
		assert.Equal(t, ":9999", cfg.ListenAddr)
	case <-time.After(3 * time.Second):
		t.Fatal("config change not republished")
	}

	assert.Eventually(t, func() bool { return w.Current().ListenAddr == ":9999" }, time.Second, 10*time.Millisecond)
}

func TestWatcherKeepsPreviousConfigOnParseFailure(t *testing.T) {
	path := writeConfig(t, "gateway_api_key: secret\nlisten_addr: \":8080\"\n")

	w, err := NewWatcher(path, observer.NoOpEmitter{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: ["), 0o600))
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, ":8080", w.Current().ListenAddr)
}
