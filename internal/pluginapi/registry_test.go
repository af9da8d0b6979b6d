package pluginapi_test

import (
	"strings"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	_ "github.com/n9te9/graphql-gateway/internal/plugins"
)

func TestNew_KnownType(t *testing.T) {
	p, err := pluginapi.New("cors", nil)
	if err != nil {
		t.Fatalf("New(cors) failed: %v", err)
	}
	if p.Name() != "cors" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNew_UnknownTypeIsError(t *testing.T) {
	_, err := pluginapi.New("imaginary", nil)
	if err == nil {
		t.Fatal("unknown plugin type must be an error")
	}
	if !strings.Contains(err.Error(), "imaginary") {
		t.Errorf("error should name the unknown type: %v", err)
	}
}

func TestRegisteredTypes_IncludesBuiltins(t *testing.T) {
	types := pluginapi.RegisteredTypes()

	want := map[string]bool{
		"cors": false, "graphiql": false, "http_get": false,
		"trusted_documents": false, "jwt_auth": false,
		"disable_introspection": false, "response_headers": false,
		"response_cache": false, "vrl": false, "telemetry": false,
	}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("built-in plugin %q is not registered", typ)
		}
	}
}

func TestDecodeConfig_MapsOntoTypedStruct(t *testing.T) {
	var out struct {
		Endpoint string `json:"endpoint"`
		Retries  int    `json:"retries"`
	}

	err := pluginapi.DecodeConfig(map[string]any{"endpoint": "http://x", "retries": 3}, &out)
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if out.Endpoint != "http://x" || out.Retries != 3 {
		t.Errorf("decoded = %+v", out)
	}
}
