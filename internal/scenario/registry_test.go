package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryBuiltins(t *testing.T) {
	r, err := NewRegistry("")
	assert.NoError(t, err)
	tpls := r.Templates()
	assert.NotEmpty(t, tpls)

	crash, ok := r.Template("crash")
	assert.True(t, ok)
	assert.Less(t, crash.StepPct, 0.0)
	assert.GreaterOrEqual(t, crash.MinTicks, 1)
}

func TestNewRegistryFromFile(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  pump:
    description: 快速拉升
    min_ticks: 2
    max_ticks: 4
    step_pct: 0.03
    weight: 2.0
  dump:
    step_pct: -0.05
`)
	r, err := NewRegistry(path)
	assert.NoError(t, err)

	pump, ok := r.Template("pump")
	assert.True(t, ok)
	assert.Equal(t, 2, pump.MinTicks)
	assert.Equal(t, 4, pump.MaxTicks)
	assert.InDelta(t, 0.03, pump.StepPct, 1e-9)

	// 省略字段按默认规整
	dump, ok := r.Template("dump")
	assert.True(t, ok)
	assert.Equal(t, 1, dump.MinTicks)
	assert.Equal(t, 1, dump.MaxTicks)
	assert.InDelta(t, 1.0, dump.Weight, 1e-9)
}

func TestNewRegistryRejectsInvalidFile(t *testing.T) {
	t.Run("缺少 step_pct", func(t *testing.T) {
		path := writeScenarioFile(t, `
scenarios:
  broken:
    min_ticks: 2
`)
		_, err := NewRegistry(path)
		assert.Error(t, err)
	})

	t.Run("step_pct 超界", func(t *testing.T) {
		path := writeScenarioFile(t, `
scenarios:
  wild:
    step_pct: 0.9
`)
		_, err := NewRegistry(path)
		assert.Error(t, err)
	})

	t.Run("缺少 scenarios 根键", func(t *testing.T) {
		path := writeScenarioFile(t, `templates: {}`)
		_, err := NewRegistry(path)
		assert.Error(t, err)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := NewRegistry("/no/such/scenarios.yaml")
		assert.Error(t, err)
	})
}

func TestReloadKeepsLastGoodSnapshot(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  pump:
    step_pct: 0.03
`)
	r, err := NewRegistry(path)
	assert.NoError(t, err)
	before := r.Snapshot()

	// 写入非法内容后 reload 失败，旧快照保留
	assert.NoError(t, os.WriteFile(path, []byte("scenarios: {}\n"), 0o644))
	assert.Error(t, r.reload())

	after := r.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	_, ok := r.Template("pump")
	assert.True(t, ok)
}

func TestReloadBumpsVersion(t *testing.T) {
	path := writeScenarioFile(t, `
scenarios:
  pump:
    step_pct: 0.03
`)
	r, err := NewRegistry(path)
	assert.NoError(t, err)
	v1 := r.Snapshot().Version

	assert.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  pump:
    step_pct: 0.02
  dump:
    step_pct: -0.02
`), 0o644))
	assert.NoError(t, r.reload())

	snap := r.Snapshot()
	assert.Equal(t, v1+1, snap.Version)
	assert.Len(t, snap.Templates, 2)
}

func TestSnapshotIsACopy(t *testing.T) {
	r, err := NewRegistry("")
	assert.NoError(t, err)
	snap := r.Snapshot()
	delete(snap.Templates, "crash")
	_, ok := r.Template("crash")
	assert.True(t, ok, "外部改动快照不影响 registry")
}
