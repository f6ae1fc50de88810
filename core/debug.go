package core

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DumpQueues writes one "Agent i: a, b, c" line per agent.
func DumpQueues(w io.Writer, e *Engine) error {
	for i := range e.agents {
		items := e.agents[i].Items()
		parts := make([]string, len(items))
		for j, v := range items {
			parts[j] = strconv.FormatUint(v, 10)
		}
		if _, err := fmt.Fprintf(w, "Agent %d: %s\n", i, strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// DumpInspections writes each agent's inspection count in id order.
func DumpInspections(w io.Writer, e *Engine) error {
	for i := range e.agents {
		if _, err := fmt.Fprintf(w, "Agent %d inspected items %d times.\n", i, e.agents[i].inspected); err != nil {
			return err
		}
	}
	return nil
}
