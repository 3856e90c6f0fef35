package payout

import (
	"fmt"
	"sort"
	"strings"
)

// SelectorAuto 按收款方偏好选择通道
const SelectorAuto = "auto"

// Registry 已注册通道集合
type Registry struct {
	rails       map[string]Rail
	defaultRail string
}

// NewRegistry 创建通道集合，第一个通道作为默认通道
func NewRegistry(rails ...Rail) *Registry {
	registry := &Registry{rails: make(map[string]Rail, len(rails))}
	for _, rail := range rails {
		if rail == nil {
			continue
		}
		name := normalizeName(rail.Name())
		if registry.defaultRail == "" {
			registry.defaultRail = name
		}
		registry.rails[name] = rail
	}
	return registry
}

// SetDefault 设置默认通道
func (r *Registry) SetDefault(name string) error {
	name = normalizeName(name)
	if _, ok := r.rails[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRail, name)
	}
	r.defaultRail = name
	return nil
}

// Get 按名称获取通道
func (r *Registry) Get(name string) (Rail, error) {
	if r == nil || len(r.rails) == 0 {
		return nil, ErrNoRails
	}
	rail, ok := r.rails[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRail, name)
	}
	return rail, nil
}

// Resolve 结合批次选择器与收款方偏好决定通道
func (r *Registry) Resolve(selector, preferred string) (Rail, error) {
	selector = normalizeName(selector)
	if selector != "" && selector != SelectorAuto {
		return r.Get(selector)
	}
	if preferred = normalizeName(preferred); preferred != "" {
		if rail, err := r.Get(preferred); err == nil {
			return rail, nil
		}
	}
	if r == nil || r.defaultRail == "" {
		return nil, ErrNoRails
	}
	return r.Get(r.defaultRail)
}

// ValidSelector 判断选择器是否合法
func (r *Registry) ValidSelector(selector string) bool {
	selector = normalizeName(selector)
	if selector == "" || selector == SelectorAuto {
		return true
	}
	_, err := r.Get(selector)
	return err == nil
}

// Names 返回全部通道名称
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.rails))
	for name := range r.rails {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
