package button

import (
	"context"
	"errors"
	"runtime"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	appLog "pireminder/internal/log"
)

// debounce suppresses contact bounce on the physical switch.
const debounce = 300 * time.Millisecond

// Watcher abstracts how we observe the physical stop button. This allows a
// mock implementation for development and a GPIO-backed one for the
// Raspberry Pi.
type Watcher interface {
	// Watch blocks until ctx is canceled, invoking onPress for each press.
	Watch(ctx context.Context, onPress func()) error
}

// mockWatcher is used off-Pi: it never fires and just waits for cancel.
type mockWatcher struct{}

// gpioWatcher waits for falling edges on a pulled-up GPIO pin (button
// wired between the pin and ground).
type gpioWatcher struct {
	pinName string
}

// NewMockWatcher constructs a no-op Watcher suitable for:
//   - local development on non-Raspberry Pi machines
//   - running without a wired button
func NewMockWatcher() Watcher {
	return &mockWatcher{}
}

// NewGPIOWatcher constructs a GPIO-backed Watcher for the named pin (e.g.
// "GPIO17"). host.Init happens inside Watch, not here.
func NewGPIOWatcher(pinName string) Watcher {
	return &gpioWatcher{pinName: pinName}
}

// DefaultWatcher returns the Watcher main should use: GPIO when a pin is
// configured and we are plausibly on a Pi, the mock otherwise.
func DefaultWatcher(pinName string) Watcher {
	if pinName == "" || runtime.GOOS != "linux" {
		return NewMockWatcher()
	}
	return NewGPIOWatcher(pinName)
}

func (m *mockWatcher) Watch(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return nil
}

func (g *gpioWatcher) Watch(ctx context.Context, onPress func()) error {
	if _, err := host.Init(); err != nil {
		return err
	}

	pin := gpioreg.ByName(g.pinName)
	if pin == nil {
		return errors.New("button: no such GPIO pin: " + g.pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return err
	}

	appLog.Info("stop button armed", "pin", g.pinName)

	last := time.Time{}
	for ctx.Err() == nil {
		// Short timeout so cancellation is observed promptly.
		if !pin.WaitForEdge(time.Second) {
			continue
		}
		now := time.Now()
		if now.Sub(last) < debounce {
			continue
		}
		last = now

		appLog.Info("stop button pressed", "pin", g.pinName)
		onPress()
	}
	return nil
}
