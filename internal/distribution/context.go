package distribution

// Context is the mutable state of a single distribution run: the rotating cursor shared
// by every round robin and the per-sku record of stores already asked. It must not be
// reused across runs.
type Context struct {
	cursor int
	used   map[string]map[int]struct{}
}

// NewContext returns a fresh run context.
func NewContext() *Context {
	return &Context{used: make(map[string]map[int]struct{})}
}

// Cursor reports the current rotor position.
func (c *Context) Cursor() int { return c.cursor }

func (c *Context) advance() { c.cursor++ }

func (c *Context) isUsed(sku string, storeID int) bool {
	_, ok := c.used[sku][storeID]
	return ok
}

func (c *Context) markUsed(sku string, storeID int) {
	set, ok := c.used[sku]
	if !ok {
		set = make(map[int]struct{})
		c.used[sku] = set
	}
	set[storeID] = struct{}{}
}

// UsedCount returns how many stores were already asked for sku in this run.
func (c *Context) UsedCount(sku string) int {
	return len(c.used[sku])
}
