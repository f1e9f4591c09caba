package stratum

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConnectionParams(t *testing.T) {
	path := writeConfig(t, `
[pool]
hostname = "pool.example.com"
port = 4444
worker_name = "rig1.worker"
password = "x"
response_timeout = "3s"
`)
	params, err := LoadConnectionParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.Hostname != "pool.example.com" || params.Port != 4444 {
		t.Fatalf("endpoint = %s:%d", params.Hostname, params.Port)
	}
	if params.WorkerName != "rig1.worker" || params.Password != "x" {
		t.Fatalf("credentials = %q/%q", params.WorkerName, params.Password)
	}
	if params.ResponseTimeout != 3*time.Second {
		t.Fatalf("timeout = %v", params.ResponseTimeout)
	}
	if params.UserAgent != defaultUserAgent {
		t.Fatalf("user agent = %q", params.UserAgent)
	}
}

func TestLoadConnectionParamsDefaults(t *testing.T) {
	path := writeConfig(t, `
[pool]
hostname = "pool.example.com"
worker_name = "w"
`)
	params, err := LoadConnectionParams(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.Port != defaultPort {
		t.Fatalf("port = %d, want default %d", params.Port, defaultPort)
	}
	if params.ResponseTimeout != defaultResponseTimeout {
		t.Fatalf("timeout = %v", params.ResponseTimeout)
	}
}

func TestLoadConnectionParamsValidation(t *testing.T) {
	cases := []string{
		"[pool]\nworker_name = \"w\"\n",                                          // no hostname
		"[pool]\nhostname = \"h\"\n",                                             // no worker
		"[pool]\nhostname = \"h\"\nworker_name = \"w\"\nport = 70000\n",          // bad port
		"[pool]\nhostname = \"h\"\nworker_name = \"w\"\nresponse_timeout = 5\n",  // wrong type
		"[pool]\nhostname = \"h\"\nworker_name = \"w\"\nresponse_timeout = \"nope\"\n",
	}
	for _, body := range cases {
		path := writeConfig(t, body)
		if _, err := LoadConnectionParams(path); err == nil {
			t.Fatalf("want error for config:\n%s", body)
		}
	}
}

func TestLoadConnectionParamsMissingFile(t *testing.T) {
	if _, err := LoadConnectionParams(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestConnectionParamsValidateDirect(t *testing.T) {
	p := ConnectionParams{Hostname: "h", Port: 3333, WorkerName: "w"}
	if err := p.validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	p = ConnectionParams{Hostname: " ", Port: 3333, WorkerName: "w"}
	if err := p.validate(); err == nil {
		t.Fatal("blank hostname should fail")
	}
}
