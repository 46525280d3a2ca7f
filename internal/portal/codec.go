package portal

import (
	"fmt"
	"net/url"
	"strings"
)

// encodeURIComponent leaves these unescaped while url.QueryEscape does not.
var componentFixups = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s the way browsers encode a URI component.
func EncodeComponent(s string) string {
	return componentFixups.Replace(url.QueryEscape(s))
}

// DecodeComponent reverses EncodeComponent. A literal '+' stays a '+'.
func DecodeComponent(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("decode component: %w", err)
	}
	return out, nil
}

// Encode returns c with both fields percent-encoded for the host boundary.
func (c Credentials) Encode() Credentials {
	return Credentials{
		Username: EncodeComponent(c.Username),
		Password: EncodeComponent(c.Password),
	}
}

// DecodeCredentials decodes a pair received across the host boundary.
func DecodeCredentials(c Credentials) (Credentials, error) {
	user, err := DecodeComponent(c.Username)
	if err != nil {
		return Credentials{}, fmt.Errorf("username: %w", err)
	}
	pass, err := DecodeComponent(c.Password)
	if err != nil {
		return Credentials{}, fmt.Errorf("password: %w", err)
	}
	return Credentials{Username: user, Password: pass}, nil
}
