package config

import (
	"encoding/json"
	"strings"
)

// sensitiveKeys 命中即脱敏（子串匹配，忽略大小写）
var sensitiveKeys = []string{"password", "secret", "token_salt", "api_key", "credential"}

// Redacted 返回配置的 JSON 视图，敏感字段替换为 [REDACTED]
func (c *Config) Redacted() map[string]any {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}

	redactSensitiveFields(result)
	return result
}

// redactSensitiveFields 递归脱敏
func redactSensitiveFields(data map[string]any) {
	for key, value := range data {
		lowerKey := strings.ToLower(key)
		for _, sensitive := range sensitiveKeys {
			if strings.Contains(lowerKey, sensitive) {
				if str, ok := value.(string); ok && str != "" {
					data[key] = "[REDACTED]"
				}
				break
			}
		}

		if nested, ok := value.(map[string]any); ok {
			redactSensitiveFields(nested)
		}
	}
}
