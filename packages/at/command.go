package at

import (
	"fmt"
	"strings"
)

// Command is a single AT command that serializes deterministically to its
// wire form. The command surface is a closed set of variants rather than ad
// hoc string formatting so it can be tested exhaustively.
type Command interface {
	// Wire returns the full command line without the trailing CRLF.
	Wire() string
}

// Raw is an escape hatch for commands not covered by a typed variant.
type Raw struct {
	Line string
}

func (c Raw) Wire() string { return c.Line }

// Attention is the bare "AT" liveness check.
type Attention struct{}

func (Attention) Wire() string { return "AT" }

// EchoOff disables command echo (ATE0).
type EchoOff struct{}

func (EchoOff) Wire() string { return "ATE0" }

// SSLVersion selects the TLS version for an SSL context.
// Version 3 selects TLS 1.2 on SIMCom modules.
type SSLVersion struct {
	Name    string // mnemonic, defaults to CSSLCFG
	Context int
	Version int
}

func (c SSLVersion) Wire() string {
	return set(orDefault(c.Name, "CSSLCFG"), "sslversion", c.Context, c.Version)
}

// SSLIgnoreLocalTime relaxes certificate validity-window checks, needed on
// devices whose RTC is not yet synchronized.
type SSLIgnoreLocalTime struct {
	Name    string // mnemonic, defaults to CSSLCFG
	Context int
	Ignore  bool
}

func (c SSLIgnoreLocalTime) Wire() string {
	v := 0
	if c.Ignore {
		v = 1
	}
	return set(orDefault(c.Name, "CSSLCFG"), "ignorelocaltime", c.Context, v)
}

// SSLProfile binds an SSL context to the HTTP service. An empty certificate
// name selects the module's default CA bundle.
type SSLProfile struct {
	Name     string // mnemonic, defaults to SHSSL
	Context  int
	CertName string
}

func (c SSLProfile) Wire() string {
	return set(orDefault(c.Name, "SHSSL"), c.Context, c.CertName)
}

// HTTPInit starts the module's HTTP service.
type HTTPInit struct {
	Name string // mnemonic, defaults to HTTPINIT
}

func (c HTTPInit) Wire() string { return "AT+" + orDefault(c.Name, "HTTPINIT") }

// HTTPTerm stops the module's HTTP service.
type HTTPTerm struct {
	Name string // mnemonic, defaults to HTTPTERM
}

func (c HTTPTerm) Wire() string { return "AT+" + orDefault(c.Name, "HTTPTERM") }

// HTTPParam sets a named HTTP parameter (URL, CONTENT, USERDATA, ...).
type HTTPParam struct {
	Name  string // mnemonic, defaults to HTTPPARA
	Key   string
	Value interface{}
}

func (c HTTPParam) Wire() string {
	return set(orDefault(c.Name, "HTTPPARA"), c.Key, c.Value)
}

// HTTPData announces a request body upload of Length bytes. The module
// answers with a DOWNLOAD prompt and accepts raw bytes for up to
// TimeoutMs milliseconds.
type HTTPData struct {
	Name      string // mnemonic, defaults to HTTPDATA
	Length    int
	TimeoutMs int
}

func (c HTTPData) Wire() string {
	return set(orDefault(c.Name, "HTTPDATA"), c.Length, c.TimeoutMs)
}

// HTTPAction issues the request. Method uses the module's encoding:
// 0 GET, 1 POST. Completion is reported asynchronously via the
// +HTTPACTION URC.
type HTTPAction struct {
	Name   string // mnemonic, defaults to HTTPACTION
	Method int
}

func (c HTTPAction) Wire() string {
	return set(orDefault(c.Name, "HTTPACTION"), c.Method)
}

// HTTPRead reads Length bytes of the response body starting at Offset.
type HTTPRead struct {
	Name   string // mnemonic, defaults to HTTPREAD
	Offset int
	Length int
}

func (c HTTPRead) Wire() string {
	return set(orDefault(c.Name, "HTTPREAD"), c.Offset, c.Length)
}

func orDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

func set(name string, args ...interface{}) string {
	return "AT+" + name + "=" + quotes(args)
}

// quote renders a single AT argument: strings quoted, integers bare.
func quote(v interface{}) string {
	switch a := v.(type) {
	case string:
		return fmt.Sprintf("%q", a)
	case int, int64:
		return fmt.Sprint(a)
	case bool:
		if a {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(a)
	}
}

func quotes(args []interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = quote(a)
	}
	return strings.Join(parts, ",")
}
