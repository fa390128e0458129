package indicator

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsName  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"
)

// desktop posts replaceable freedesktop notifications.
type desktop interface {
	Notify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int32) (uint32, error)
	Close() error
}

// sessionBus talks to the notification daemon over a private session bus
// connection, opened on first use.
type sessionBus struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func (b *sessionBus) object() (dbus.BusObject, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("connect to session bus: %w", err)
		}
		b.conn = conn
	}
	return b.conn.Object(notificationsName, notificationsPath), nil
}

func (b *sessionBus) Notify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int32) (uint32, error) {
	obj, err := b.object()
	if err != nil {
		return 0, err
	}

	var id uint32
	call := obj.CallWithContext(ctx, notificationsIface+".Notify", 0,
		appName,
		replaceID,
		"",
		summary,
		"",
		[]string{},
		map[string]dbus.Variant{},
		timeoutMS,
	)
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}
	return id, nil
}

func (b *sessionBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
