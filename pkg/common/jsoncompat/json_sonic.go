//go:build sonic

package jsoncompat

import "github.com/bytedance/sonic"

// Marshal proxies to sonic.Marshal when built with the sonic tag.
func Marshal(v any) ([]byte, error) { return sonic.Marshal(v) }

// Unmarshal proxies to sonic.Unmarshal when built with the sonic tag.
func Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }
