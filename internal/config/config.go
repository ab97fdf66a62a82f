package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量覆盖前缀：fusion.max_delay_ms 对应 BAGBOT_FUSION_MAX_DELAY_MS。
const EnvPrefix = "BAGBOT"

// Load 读取主配置及其 include 列表，按顺序合并，叠加 BAGBOT_* 环境变量后应用默认值并校验。
func Load(path string) (*Config, error) {
	cfg, keys, err := decodeLayers(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(keys)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFusion 只对 fusion 段应用默认值与校验，热更新时其它段写错不影响 fusion 生效。
func LoadFusion(path string) (FusionSection, error) {
	cfg, keys, err := decodeLayers(path)
	if err != nil {
		return FusionSection{}, err
	}
	sec := cfg.Fusion
	sec.applyDefaults(keys)
	if err := sec.validate(); err != nil {
		return FusionSection{}, err
	}
	return sec, nil
}

// decodeLayers 文件层 -> 环境变量层，返回解码结果与显式设置过的 key。
func decodeLayers(path string) (*Config, keySet, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	if err := bindEnvOverrides(v); err != nil {
		return nil, nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, nil, fmt.Errorf("parsing config failed: %w", err)
	}
	keys := make(keySet)
	collectSettingsKeys(v.AllSettings(), keys)
	return &cfg, keys, nil
}

// bindEnvOverrides AutomaticEnv 只覆盖已出现在文件里的 key，这里按结构体逐个绑定，
// 文件里没写的字段也能由环境变量提供。
func bindEnvOverrides(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// configKeys 按 toml tag 列出所有叶子字段路径，如 publisher.breaker.timeout_seconds。
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			keys = append(keys, configKeys(f.Type, name)...)
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// resolveConfigIncludes 深度优先展开 include，被包含的文件排在前面（后者覆盖前者）。
func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := includeResolver{seen: map[string]bool{}, active: map[string]bool{}}
	if err := r.walk(abs); err != nil {
		return nil, err
	}
	return r.ordered, nil
}

type includeResolver struct {
	seen    map[string]bool
	active  map[string]bool
	ordered []string
}

func (r *includeResolver) walk(path string) error {
	path = filepath.Clean(path)
	if r.active[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if r.seen[path] {
		return nil
	}
	r.active[path] = true
	includes, err := parseIncludeList(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.walk(inc); err != nil {
			return err
		}
	}
	delete(r.active, path)
	r.seen[path] = true
	r.ordered = append(r.ordered, path)
	return nil
}

func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var items []string
	switch val := v.Get("include").(type) {
	case nil:
		return nil, nil
	case []string:
		items = val
	case []any:
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include only supports strings")
			}
			items = append(items, str)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			if next := join(k); next != "" {
				flattenConfigKeys(next, child, dest)
			}
		}
	case map[any]any:
		for k, child := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			if next := join(ks); next != "" {
				flattenConfigKeys(next, child, dest)
			}
		}
	default:
		// 列表与标量都算叶子
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
