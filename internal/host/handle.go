package host

import "github.com/l1jgo/tickhooks/internal/lifecycle"

// World is the harness's world handle. Its time advances by one on every
// world tick the driver dispatches.
type World struct {
	name string
	time int64
}

func NewWorld(name string) *World {
	return &World{name: name}
}

func (w *World) Name() string { return w.name }
func (w *World) Time() int64  { return w.time }

// Client is the harness's client handle.
// Accessed only from the driver goroutine, no locks needed.
type Client struct {
	name   string
	ticks  uint64
	worlds []*World
}

func NewClient(name string, worlds ...*World) *Client {
	return &Client{name: name, worlds: worlds}
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Ticks() uint64 { return c.ticks }

// Worlds returns the loaded worlds in tick order.
func (c *Client) Worlds() []lifecycle.World {
	out := make([]lifecycle.World, len(c.worlds))
	for i, w := range c.worlds {
		out[i] = w
	}
	return out
}

// LoadWorld appends a world; it is ticked starting with the next client tick.
func (c *Client) LoadWorld(w *World) {
	c.worlds = append(c.worlds, w)
}

// UnloadWorld removes the named world. Returns false if it was not loaded.
func (c *Client) UnloadWorld(name string) bool {
	for i, w := range c.worlds {
		if w.name == name {
			c.worlds = append(c.worlds[:i], c.worlds[i+1:]...)
			return true
		}
	}
	return false
}
