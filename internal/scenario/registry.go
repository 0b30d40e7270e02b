package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradegym/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Template 描述一个可被触发的行情剧本：在常规 regime 之上
// 叠加的逐 tick 确定性位移。
type Template struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	MinTicks    int     `yaml:"min_ticks"`
	MaxTicks    int     `yaml:"max_ticks"`
	StepPct     float64 `yaml:"step_pct"`
	Weight      float64 `yaml:"weight"`
}

// FileConfig 映射 scenarios 配置文件。
type FileConfig struct {
	Scenarios map[string]Template `yaml:"scenarios"`
}

// Snapshot 公开的模板快照。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Templates map[string]Template
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理剧本模板，支持文件热更新；文件非法时保留上一份有效快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// fileSchema 约束 scenarios 文件结构，重载时先校验再生效。
const fileSchema = `{
  "type": "object",
  "properties": {
    "scenarios": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "description": {"type": "string"},
          "min_ticks": {"type": "integer", "minimum": 1},
          "max_ticks": {"type": "integer", "minimum": 1},
          "step_pct": {"type": "number", "minimum": -0.2, "maximum": 0.2},
          "weight": {"type": "number", "minimum": 0}
        },
        "required": ["step_pct"]
      }
    }
  },
  "required": ["scenarios"]
}`

var compiledFileSchema = jsonschema.MustCompileString("scenarios.json", fileSchema)

// NewRegistry 读取剧本文件并监听更新。path 为空时使用内置模板，不监听。
func NewRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		r := &Registry{}
		r.snapshot = Snapshot{
			Version:   1,
			LoadedAt:  time.Now(),
			Templates: builtinTemplates(),
		}
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read scenario config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("scenario reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前模板集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Template 返回指定 ID 的模板。
func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Templates[strings.TrimSpace(id)]
	return tpl, ok
}

// Templates 返回稳定顺序无关的模板列表副本。
func (r *Registry) Templates() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.snapshot.Templates))
	for _, tpl := range r.snapshot.Templates {
		out = append(out, tpl)
	}
	return out
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readScenarioFile(r.path)
	if err != nil {
		return err
	}
	templates := make(map[string]Template)
	for name, tpl := range cfg.Scenarios {
		norm := normalizeTemplate(name, tpl)
		templates[norm.ID] = norm
	}
	if len(templates) == 0 {
		return fmt.Errorf("scenario file %s contains no scenarios", r.path)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Templates: templates,
	}
	r.mu.Unlock()
	logger.Infof("scenario registry loaded %d templates from %s", len(templates), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("scenario listener")
			cb(snap)
		}(fn)
	}
}

func normalizeTemplate(name string, tpl Template) Template {
	tpl.ID = strings.TrimSpace(tpl.ID)
	if tpl.ID == "" {
		tpl.ID = strings.TrimSpace(name)
	}
	tpl.Description = strings.TrimSpace(tpl.Description)
	if tpl.MinTicks <= 0 {
		tpl.MinTicks = 1
	}
	if tpl.MaxTicks < tpl.MinTicks {
		tpl.MaxTicks = tpl.MinTicks
	}
	if tpl.Weight <= 0 {
		tpl.Weight = 1
	}
	return tpl
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Templates: make(map[string]Template, len(src.Templates)),
	}
	for id, tpl := range src.Templates {
		dst.Templates[id] = tpl
	}
	return dst
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

func readScenarioFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read scenario config failed: %w", err)
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, fmt.Errorf("parse scenario config failed: %w", err)
	}
	if err := validateFile(generic); err != nil {
		return FileConfig{}, fmt.Errorf("scenario config invalid: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse scenario config failed: %w", err)
	}
	return cfg, nil
}

// validateFile 通过 json 往返把 yaml 解码值规整为 schema 校验器可接受的类型。
func validateFile(generic map[string]any) error {
	raw, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return compiledFileSchema.Validate(doc)
}

func builtinTemplates() map[string]Template {
	list := []Template{
		{ID: "crash", Description: "连续多 tick 的强制下跌", MinTicks: 4, MaxTicks: 8, StepPct: -0.02, Weight: 1},
		{ID: "flash_dip", Description: "单 tick 急挫", MinTicks: 1, MaxTicks: 2, StepPct: -0.03, Weight: 0.6},
		{ID: "news_spike", Description: "利好消息单 tick 冲高", MinTicks: 1, MaxTicks: 2, StepPct: 0.025, Weight: 0.8},
		{ID: "melt_up", Description: "多 tick 持续拉升", MinTicks: 3, MaxTicks: 6, StepPct: 0.012, Weight: 1},
	}
	out := make(map[string]Template, len(list))
	for _, tpl := range list {
		out[tpl.ID] = tpl
	}
	return out
}
