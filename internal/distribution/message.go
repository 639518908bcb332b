package distribution

import (
	"fmt"
	"strings"
)

const (
	DefaultGreeting = "שלום!\nצריכים סחורה:"
	DefaultClosing  = "תודה רבה!"
)

// Composer renders the pickup message sent to a store manager.
type Composer struct {
	Greeting string
	Closing  string
}

// DefaultComposer uses the stock greeting and closing lines.
func DefaultComposer() Composer {
	return Composer{Greeting: DefaultGreeting, Closing: DefaultClosing}
}

// Compose lists items in the order they were requested. A single item is written
// without numbering.
func (c Composer) Compose(items []RequestItem) string {
	var body string
	if len(items) == 1 {
		body = fmt.Sprintf("%s\n %s", items[0].ProductName, items[0].SKU)
	} else {
		blocks := make([]string, len(items))
		for i, it := range items {
			blocks[i] = fmt.Sprintf("%d. %s\n  %s", i+1, it.ProductName, it.SKU)
		}
		body = strings.Join(blocks, "\n\n")
	}
	return c.Greeting + "\n\n" + body + "\n\n" + c.Closing
}
