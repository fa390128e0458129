package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Server    *jsoncServer    `json:"server"`
	KeepAlive *jsoncKeepAlive `json:"keepalive"`
	Button    *jsoncButton    `json:"button"`
	Peer      *jsoncPeer      `json:"peer"`
	Indicator *jsoncIndicator `json:"indicator"`
	Health    *jsoncHealth    `json:"health"`
	Log       *jsoncLog       `json:"log"`
}

type jsoncServer struct {
	Address       *string `json:"address"`
	Port          *int    `json:"port"`
	Backlog       *int    `json:"backlog"`
	RecvTimeoutMS *int    `json:"recv_timeout_ms"`
	MaxRecvBytes  *int    `json:"max_recv_bytes"`
}

type jsoncKeepAlive struct {
	IdleMS     *int `json:"idle_ms"`
	IntervalMS *int `json:"interval_ms"`
	Count      *int `json:"count"`
}

type jsoncButton struct {
	Backend    *string `json:"backend"`
	Pin        *string `json:"pin"`
	ActiveLow  *bool   `json:"active_low"`
	DebounceMS *int    `json:"debounce_ms"`
}

type jsoncPeer struct {
	Address *string `json:"address"`
	LEDPin  *string `json:"led_pin"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
}

type jsoncHealth struct {
	Enable  *bool   `json:"enable"`
	Address *string `json:"address"`
}

type jsoncLog struct {
	Level   *string `json:"level"`
	Console *bool   `json:"console"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if s := payload.Server; s != nil {
		setString(&cfg.Server.Address, s.Address)
		setInt(&cfg.Server.Port, s.Port)
		setInt(&cfg.Server.Backlog, s.Backlog)
		setInt(&cfg.Server.RecvTimeoutMS, s.RecvTimeoutMS)
		setInt(&cfg.Server.MaxRecvBytes, s.MaxRecvBytes)
	}
	if k := payload.KeepAlive; k != nil {
		setInt(&cfg.KeepAlive.IdleMS, k.IdleMS)
		setInt(&cfg.KeepAlive.IntervalMS, k.IntervalMS)
		setInt(&cfg.KeepAlive.Count, k.Count)
	}
	if b := payload.Button; b != nil {
		setString(&cfg.Button.Backend, b.Backend)
		cfg.Button.Backend = strings.ToLower(cfg.Button.Backend)
		setString(&cfg.Button.Pin, b.Pin)
		setBool(&cfg.Button.ActiveLow, b.ActiveLow)
		setInt(&cfg.Button.DebounceMS, b.DebounceMS)
	}
	if p := payload.Peer; p != nil {
		setString(&cfg.Peer.Address, p.Address)
		setString(&cfg.Peer.LEDPin, p.LEDPin)
	}
	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
	}
	if h := payload.Health; h != nil {
		setBool(&cfg.Health.Enable, h.Enable)
		setString(&cfg.Health.Address, h.Address)
	}
	if l := payload.Log; l != nil {
		setString(&cfg.Log.Level, l.Level)
		setBool(&cfg.Log.Console, l.Console)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// normalizeJSONC blanks out comments and drops trailing commas so the result
// is plain JSON with byte offsets preserved for everything but removed commas.
func normalizeJSONC(content string) (string, error) {
	src := []byte(content)
	out := make([]byte, 0, len(src))

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch {
		case ch == '"':
			end := skipString(src, i)
			out = append(out, src[i:end]...)
			i = end - 1
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' && src[i] != '\r' {
				out = append(out, ' ')
				i++
			}
			i--
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
			stop := i + 2 + end + 2
			for ; i < stop; i++ {
				out = append(out, blank(src[i]))
			}
			i--
		case ch == ',' && closesNext(src, i+1):
		default:
			out = append(out, ch)
		}
	}
	return string(out), nil
}

// skipString returns the index just past the string literal starting at start.
func skipString(src []byte, start int) int {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(src)
}

// closesNext reports whether the next significant byte from i closes an
// object or array. Comments between the comma and the bracket are skipped.
func closesNext(src []byte, i int) bool {
	for i < len(src) {
		switch {
		case src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r':
			i++
		case src[i] == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case src[i] == '/' && i+1 < len(src) && src[i+1] == '*':
			end := bytes.Index(src[i+2:], []byte("*/"))
			if end < 0 {
				return false
			}
			i += end + 4
		default:
			return src[i] == '}' || src[i] == ']'
		}
	}
	return false
}

func blank(ch byte) byte {
	if ch == '\n' || ch == '\r' || ch == '\t' {
		return ch
	}
	return ' '
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))
	prefix := content[:max(limit-1, 0)]

	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndex(prefix, "\n")
	return line, col
}
