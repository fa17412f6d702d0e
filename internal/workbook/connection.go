package workbook

import (
	"context"
	"errors"
	"sync"

	"gridnerd/internal/logging"
)

// Connection owns the automation surface for the life of the process.
// It is connected explicitly, checked before use, and reconnected at most once per check.
type Connection struct {
	mu        sync.Mutex
	surface   Surface
	status    ConnectionStatus
	connected bool
}

// NewConnection wraps a surface. The connection starts disconnected.
func NewConnection(surface Surface) *Connection {
	return &Connection{
		surface: surface,
		status:  ConnectionStatus{State: StateError, Message: "not connected"},
	}
}

// Surface returns the underlying surface.
func (c *Connection) Surface() Surface { return c.surface }

// Connect opens (or reopens) the workbook and records the outcome.
func (c *Connection) Connect(ctx context.Context) ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, _ := c.connectLocked(ctx, "connect")
	return status
}

func (c *Connection) connectLocked(ctx context.Context, op string) (ConnectionStatus, error) {
	if c.connected {
		_ = c.surface.Disconnect()
		c.connected = false
	}

	status, err := c.surface.Connect(ctx)
	if err == nil && !status.Usable() {
		err = errors.New(status.Message)
	}
	if err != nil {
		c.status = ConnectionStatus{State: StateError, Message: err.Error()}
		logging.WorkbookWarn("%s failed: %v", op, err)
		return c.status, &ConnectionError{Op: op, Err: err}
	}

	c.connected = true
	c.status = status
	if status.State == StatePartial {
		logging.WorkbookWarn("%s partial: %s", op, status.Message)
	} else {
		logging.Workbook("%s: %s [%s]", op, status.WorkbookName, status.SheetName)
	}
	return status, nil
}

// EnsureLive verifies the session and attempts exactly one reconnect when it is gone.
// The returned error wraps ErrNotConnected.
func (c *Connection) EnsureLive(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		err := c.surface.Ping(ctx)
		if err == nil {
			return nil
		}
		logging.WorkbookWarn("session check failed, reconnecting: %v", err)
	}
	_, err := c.connectLocked(ctx, "reconnect")
	return err
}

// IsConnected reports whether the last connect or check succeeded. It does not ping.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Status returns the last recorded connection status.
func (c *Connection) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Disconnect closes the session.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.status = ConnectionStatus{State: StateError, Message: "disconnected"}
	return c.surface.Disconnect()
}
