package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukerupert/daybook/internal/model"

	"github.com/godbus/dbus/v5"
)

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod  = notifyService + ".Notify"
	capsMethod    = notifyService + ".GetCapabilities"
)

// Desktop shows reminders through the freedesktop notification service on
// the session bus.
type Desktop struct {
	appName string
	// timeout in milliseconds, -1 lets the server decide.
	timeout int32

	mu  sync.Mutex
	bus *dbus.Conn
	// replaces maps alarm keys to the server id of the last popup so a
	// re-fired reminder replaces rather than stacks.
	replaces map[int32]uint32
}

// NewDesktop connects to the session bus.
func NewDesktop(appName string) (*Desktop, error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{
		appName:  appName,
		timeout:  -1,
		bus:      bus,
		replaces: make(map[int32]uint32),
	}, nil
}

// CheckPermission verifies a notification server is listening.
func (d *Desktop) CheckPermission(ctx context.Context) error {
	var caps []string
	obj := d.bus.Object(notifyService, notifyPath)
	if err := obj.CallWithContext(ctx, capsMethod, 0).Store(&caps); err != nil {
		return fmt.Errorf("query notification server: %w", err)
	}
	return nil
}

func (d *Desktop) Notify(ctx context.Context, a model.Alarm) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"category": dbus.MakeVariant("reminder"),
		"urgency":  dbus.MakeVariant(byte(1)),
	}

	var id uint32
	obj := d.bus.Object(notifyService, notifyPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName,
		d.replaces[a.Key],
		"",
		a.Title,
		a.Body,
		[]string{},
		hints,
		d.timeout,
	)
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("send desktop notification %q: %w", a.Title, err)
	}
	d.replaces[a.Key] = id
	return nil
}

func (d *Desktop) Close() error {
	return d.bus.Close()
}
