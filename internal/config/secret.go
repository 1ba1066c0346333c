package config

import (
	"encoding/json"
	"fmt"
)

// Secret holds a credential loaded from YAML or the environment. Every
// formatting path prints a placeholder; call Value for the real string.
type Secret string

const secretMask = "[REDACTED]"

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secretMask
}

// Format covers %v, %s, %q and %#v.
func (s Secret) Format(f fmt.State, verb rune) {
	if verb == 'q' {
		fmt.Fprintf(f, "%q", s.String())
		return
	}
	_, _ = f.Write([]byte(s.String()))
}

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// MarshalText keeps YAML and koanf dumps masked as well.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
