package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// PIIType PII 类型
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPv4       PIIType = "ipv4"
	PIITypeIDCard     PIIType = "id_card"
)

// Sanitizer detects and tokenizes sensitive values in tool parameters.
type Sanitizer interface {
	ContainsPII(ctx context.Context, params map[string]any) (bool, error)
	Tokenize(ctx context.Context, params map[string]any) (map[string]any, error)
}

// pattern pairs a regexp with an optional post-match check.
type pattern struct {
	typ   PIIType
	re    *regexp.Regexp
	valid func(string) bool
}

// 匹配顺序固定：长模式先于可能是其子串的短模式
var defaultOrder = []PIIType{
	PIITypeEmail,
	PIITypeIDCard,
	PIITypeCreditCard,
	PIITypeSSN,
	PIITypePhone,
	PIITypeIPv4,
}

func defaultPatterns() map[PIIType]pattern {
	return map[PIIType]pattern{
		PIITypeEmail: {re: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
		// 中国大陆身份证号: 18位，最后一位可能是X
		PIITypeIDCard: {re: regexp.MustCompile(`[1-9]\d{5}(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]`)},
		PIITypeCreditCard: {
			re:    regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
			valid: luhnValid,
		},
		PIITypeSSN: {re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		// 北美格式 (555) 123-4567 / 555-123-4567，以及中国大陆手机号
		PIITypePhone: {re: regexp.MustCompile(`(?:\+?1[-. ])?(?:\(\d{3}\)|\b\d{3})[-. ]\d{3}[-. ]\d{4}\b|1[3-9]\d{9}`)},
		PIITypeIPv4:  {re: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`)},
	}
}

// DetectorConfig PII 检测器配置
type DetectorConfig struct {
	// EnabledTypes 启用的 PII 类型，为空则启用所有类型
	EnabledTypes []PIIType
	// Salt 参与令牌哈希，不同部署应使用不同的值
	Salt string
	// Vault 非空时记录令牌到原文的映射
	Vault *Vault
}

// Detector is the regexp-backed Sanitizer.
type Detector struct {
	patterns []pattern
	salt     string
	vault    *Vault
	logger   *zap.Logger
}

// NewDetector 创建 PII 检测器
func NewDetector(cfg DetectorConfig, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	enabled := make(map[PIIType]bool)
	for _, t := range cfg.EnabledTypes {
		enabled[t] = true
	}

	all := defaultPatterns()
	for t := range enabled {
		if _, ok := all[t]; !ok {
			return nil, fmt.Errorf("unknown pii type %q", t)
		}
	}

	d := &Detector{
		salt:   cfg.Salt,
		vault:  cfg.Vault,
		logger: logger.With(zap.String("component", "pii_detector")),
	}
	for _, t := range defaultOrder {
		if len(enabled) > 0 && !enabled[t] {
			continue
		}
		p := all[t]
		p.typ = t
		d.patterns = append(d.patterns, p)
	}
	return d, nil
}

// Match is one detected sensitive value.
type Match struct {
	Type  PIIType `json:"type"`
	Value string  `json:"value"`
}

// Detect returns all matches in s, in pattern order.
func (d *Detector) Detect(s string) []Match {
	var matches []Match
	for _, p := range d.patterns {
		for _, m := range p.re.FindAllString(s, -1) {
			if p.valid != nil && !p.valid(m) {
				continue
			}
			matches = append(matches, Match{Type: p.typ, Value: m})
		}
	}
	return matches
}

// ContainsString reports whether s holds any sensitive value.
func (d *Detector) ContainsString(s string) bool {
	for _, p := range d.patterns {
		for _, m := range p.re.FindAllString(s, -1) {
			if p.valid == nil || p.valid(m) {
				return true
			}
		}
	}
	return false
}

// TokenizeString replaces every sensitive value in s with its token.
func (d *Detector) TokenizeString(s string) string {
	for _, p := range d.patterns {
		p := p
		s = p.re.ReplaceAllStringFunc(s, func(m string) string {
			if p.valid != nil && !p.valid(m) {
				return m
			}
			return d.token(p.typ, m)
		})
	}
	return s
}

func (d *Detector) token(t PIIType, value string) string {
	sum := sha256.Sum256([]byte(d.salt + "|" + string(t) + "|" + value))
	tok := fmt.Sprintf("[PII_%s_%s]", strings.ToUpper(string(t)), hex.EncodeToString(sum[:4]))
	if d.vault != nil {
		d.vault.put(tok, value)
	}
	return tok
}

func (d *Detector) ContainsPII(ctx context.Context, params map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.containsValue(params), nil
}

func (d *Detector) containsValue(v any) bool {
	switch val := v.(type) {
	case string:
		return d.ContainsString(val)
	case map[string]any:
		for _, item := range val {
			if d.containsValue(item) {
				return true
			}
		}
	case []any:
		for _, item := range val {
			if d.containsValue(item) {
				return true
			}
		}
	case map[string]string:
		for _, item := range val {
			if d.ContainsString(item) {
				return true
			}
		}
	case []string:
		for _, item := range val {
			if d.ContainsString(item) {
				return true
			}
		}
	default:
		if generic, ok := jsonShape(v); ok {
			return d.containsValue(generic)
		}
	}
	return false
}

// Tokenize returns a copy of params with the same shape and every sensitive
// string value replaced. Keys are left untouched, params is never mutated.
func (d *Detector) Tokenize(ctx context.Context, params map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, nil
	}
	out := d.tokenizeValue(params).(map[string]any)
	d.logger.Debug("parameters tokenized", zap.Int("keys", len(out)))
	return out, nil
}

func (d *Detector) tokenizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return d.TokenizeString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = d.tokenizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = d.tokenizeValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = d.TokenizeString(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = d.TokenizeString(item)
		}
		return out
	default:
		if generic, ok := jsonShape(v); ok {
			return d.tokenizeValue(generic)
		}
		return v
	}
}

// jsonShape 把结构体、指针、带类型的 map/slice 转成 JSON 通用形状，
// 使嵌套字符串可被检测；无法序列化或非容器时返回 false
func jsonShape(v any) (any, bool) {
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if json.Unmarshal(raw, &decoded) != nil {
			return nil, false
		}
		return decoded, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer:
	default:
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// luhnValid 校验银行卡号的 Luhn 校验位
func luhnValid(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		digit := int(c - '0')
		if n%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		n++
	}
	return n >= 13 && sum%10 == 0
}

// Noop never detects anything. Used when privacy is disabled.
type Noop struct{}

func (Noop) ContainsPII(context.Context, map[string]any) (bool, error) { return false, nil }

func (Noop) Tokenize(_ context.Context, params map[string]any) (map[string]any, error) {
	return params, nil
}
