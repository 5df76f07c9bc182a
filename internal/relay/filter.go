package relay

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/BaSui01/tenex/types"
)

// Filter 订阅过滤条件。Tags 的键为单字母标签名（如 "p"、"e"），序列化为 "#p"。
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
}

// MarshalJSON 按中继协议的字段名输出
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		m["#"+name] = values
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// Matches 本地判断事件是否满足过滤条件
func (f Filter) Matches(ev *types.Event) bool {
	if ev == nil {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && ev.CreatedAt > f.Until {
		return false
	}
	for name, values := range f.Tags {
		if !slices.ContainsFunc(ev.TagValues(name), func(v string) bool { return slices.Contains(values, v) }) {
			return false
		}
	}
	return true
}

// UnmarshalJSON 解析中继协议格式的过滤条件
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{}
	for key, value := range raw {
		var err error
		switch key {
		case "ids":
			err = json.Unmarshal(value, &f.IDs)
		case "authors":
			err = json.Unmarshal(value, &f.Authors)
		case "kinds":
			err = json.Unmarshal(value, &f.Kinds)
		case "since":
			err = json.Unmarshal(value, &f.Since)
		case "until":
			err = json.Unmarshal(value, &f.Until)
		case "limit":
			err = json.Unmarshal(value, &f.Limit)
		default:
			if len(key) == 2 && key[0] == '#' {
				var values []string
				if err = json.Unmarshal(value, &values); err == nil {
					if f.Tags == nil {
						f.Tags = make(map[string][]string)
					}
					f.Tags[key[1:]] = values
				}
			}
		}
		if err != nil {
			return fmt.Errorf("filter field %q: %w", key, err)
		}
	}
	return nil
}
