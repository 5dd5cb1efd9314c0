package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l1jgo/tickhooks/internal/data"
	"github.com/stretchr/testify/require"
)

// writeTable writes scripts plus a manifest listing ids (script = id + ".lua")
// and loads it through the regular manifest loader.
func writeTable(t *testing.T, dir string, scripts map[string]string, ids []string) *data.PluginTable {
	t.Helper()
	for name, src := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	var b strings.Builder
	b.WriteString("plugins:\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "  - id: %s\n    script: %s.lua\n", id, id)
	}
	manifest := filepath.Join(dir, "plugins.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(b.String()), 0o644))

	table, err := data.LoadPluginTable(manifest, dir)
	require.NoError(t, err)
	return table
}
