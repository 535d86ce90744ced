package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidStatus = errors.New("crm: invalid status")

// Status is a referral-portal status with an optional sub option, e.g.
// "Active" / "Touring homes".
type Status struct {
	Primary   string `json:"primary"`
	SubOption string `json:"sub_option,omitempty"`
}

func (s Status) IsZero() bool { return s.Primary == "" }

func (s Status) String() string {
	if s.SubOption == "" {
		return s.Primary
	}
	return s.Primary + ":" + s.SubOption
}

// ParseStatus accepts the loose shapes status payloads arrive in: a plain
// string, "primary:sub", a one- or two-element list, or an object with
// primary/status and sub_option/sub/substatus keys.
func ParseStatus(v any) (Status, error) {
	var s Status
	switch val := v.(type) {
	case Status:
		s = val
	case string:
		primary, sub, _ := strings.Cut(val, ":")
		s = Status{Primary: primary, SubOption: sub}
	case []string:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = item
		}
		return ParseStatus(items)
	case []any:
		if len(val) == 0 || len(val) > 2 {
			return Status{}, fmt.Errorf("%w: expected 1 or 2 elements, got %d", ErrInvalidStatus, len(val))
		}
		primary, ok := val[0].(string)
		if !ok {
			return Status{}, fmt.Errorf("%w: primary must be a string", ErrInvalidStatus)
		}
		s.Primary = primary
		if len(val) == 2 && val[1] != nil {
			sub, ok := val[1].(string)
			if !ok {
				return Status{}, fmt.Errorf("%w: sub option must be a string", ErrInvalidStatus)
			}
			s.SubOption = sub
		}
	case map[string]any:
		s.Primary = firstString(val, "primary", "status")
		s.SubOption = firstString(val, "sub_option", "sub", "substatus")
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = item
		}
		return ParseStatus(m)
	case nil:
		return Status{}, fmt.Errorf("%w: empty", ErrInvalidStatus)
	default:
		return Status{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidStatus, v)
	}

	s.Primary = strings.TrimSpace(s.Primary)
	s.SubOption = strings.TrimSpace(s.SubOption)
	if s.Primary == "" {
		return Status{}, fmt.Errorf("%w: primary status required", ErrInvalidStatus)
	}
	return s, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// ParseStatusMap decodes a JSON object of conversation state to status,
// where each value may take any shape ParseStatus accepts. Keys are
// lower-cased.
func ParseStatusMap(raw string) (map[string]Status, error) {
	out := map[string]Status{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("crm: decode status map: %w", err)
	}
	for state, v := range decoded {
		s, err := ParseStatus(v)
		if err != nil {
			return nil, fmt.Errorf("crm: status for %q: %w", state, err)
		}
		out[strings.ToLower(state)] = s
	}
	return out, nil
}

// DefaultStatusMap is used when no mapping is configured.
func DefaultStatusMap() map[string]Status {
	return map[string]Status{
		"initial":            {Primary: "New"},
		"qualifying":         {Primary: "Active", SubOption: "Qualifying"},
		"objection_handling": {Primary: "Active", SubOption: "Nurturing"},
		"scheduling":         {Primary: "Active", SubOption: "Scheduling showing"},
		"nurture":            {Primary: "Nurture"},
		"handed_off":         {Primary: "Active", SubOption: "Agent engaged"},
	}
}
