package cache

import (
	"fmt"
	"html/template"
	"io"

	"github.com/IvanBrykalov/logcache/op"
)

// dumpMaxEntries bounds how many resident ops a dump renders, so
// diagnostics stay cheap no matter how full the cache is.
const dumpMaxEntries = 100

// StatsString implements Cache.
func (c *logCache) StatsString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsStringLocked()
}

func (c *logCache) statsStringLocked() string {
	return fmt.Sprintf(
		"LogCache(%s): ops=%d bytes=%d/%d pin=%d inflight=%d preceding=%s tail=%s hits=%d misses=%d global=%d/%d",
		c.opt.Name, c.store.len(), c.localUsed, c.opt.HardLimitBytes,
		c.pinIndex, len(c.inflight), c.store.preceding, c.tail,
		c.hits.Load(), c.misses.Load(),
		c.global.BytesUsed(), c.global.LimitBytes(),
	)
}

// DumpToStrings implements Cache. The snapshot is taken under the same
// lock as mutations, so it is internally consistent.
func (c *logCache) DumpToStrings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, dumpMaxEntries+2)
	lines = append(lines, c.statsStringLocked())

	n := 0
	c.store.ascendAfter(0, func(o *op.Op) bool {
		if n == dumpMaxEntries {
			lines = append(lines, fmt.Sprintf("... %d more", c.store.len()-n))
			return false
		}
		flag := ""
		if _, awaiting := c.inflight[o.Index]; awaiting {
			flag = " in-flight"
		}
		lines = append(lines, fmt.Sprintf("  op %s: %d bytes%s", o.ID(), o.ByteSize(), flag))
		n++
		return true
	})
	return lines
}

// DumpToLog implements Cache.
func (c *logCache) DumpToLog() {
	for _, line := range c.DumpToStrings() {
		c.lg.Info(line)
	}
}

var dumpTmpl = template.Must(template.New("dump").Parse(`<h3>Log Cache</h3>
<pre>
{{- range . }}
{{ . }}
{{- end }}
</pre>
`))

// DumpToHTML implements Cache. It renders the same bounded snapshot as
// DumpToStrings, escaped for embedding in a debug page.
func (c *logCache) DumpToHTML(w io.Writer) error {
	return dumpTmpl.Execute(w, c.DumpToStrings())
}
