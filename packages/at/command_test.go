package at

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandWire(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"attention", Attention{}, "AT"},
		{"echo off", EchoOff{}, "ATE0"},
		{"ssl version tls12", SSLVersion{Context: 0, Version: 3}, `AT+CSSLCFG="sslversion",0,3`},
		{"ssl ignore local time", SSLIgnoreLocalTime{Context: 0, Ignore: true}, `AT+CSSLCFG="ignorelocaltime",0,1`},
		{"ssl keep local time", SSLIgnoreLocalTime{Context: 0}, `AT+CSSLCFG="ignorelocaltime",0,0`},
		{"ssl default profile", SSLProfile{Context: 0, CertName: ""}, `AT+SHSSL=0,""`},
		{"http init", HTTPInit{}, "AT+HTTPINIT"},
		{"http term", HTTPTerm{}, "AT+HTTPTERM"},
		{"url param", HTTPParam{Key: "URL", Value: "https://flask-ota-server.vercel.app/health"}, `AT+HTTPPARA="URL","https://flask-ota-server.vercel.app/health"`},
		{"content param", HTTPParam{Key: "CONTENT", Value: "application/json"}, `AT+HTTPPARA="CONTENT","application/json"`},
		{"data announce", HTTPData{Length: 17, TimeoutMs: 10000}, "AT+HTTPDATA=17,10000"},
		{"action get", HTTPAction{Method: 0}, "AT+HTTPACTION=0"},
		{"action post", HTTPAction{Method: 1}, "AT+HTTPACTION=1"},
		{"read", HTTPRead{Offset: 0, Length: 512}, "AT+HTTPREAD=0,512"},
		{"raw", Raw{Line: "AT+CFUN?"}, "AT+CFUN?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.Wire())
		})
	}
}

func TestCommandWire_MnemonicOverride(t *testing.T) {
	// SIM70xx-family modules spell the HTTP service differently.
	assert.Equal(t, "AT+SHCONN", HTTPInit{Name: "SHCONN"}.Wire())
	assert.Equal(t, `AT+SHCONF="URL","https://example.com"`, HTTPParam{Name: "SHCONF", Key: "URL", Value: "https://example.com"}.Wire())
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"a"`, quote("a"))
	assert.Equal(t, "7", quote(7))
	assert.Equal(t, "1", quote(true))
	assert.Equal(t, `"a",1,""`, quotes([]interface{}{"a", 1, ""}))
}
