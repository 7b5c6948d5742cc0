package app

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vk/gridci/internal/executor"
	"github.com/vk/gridci/internal/hcl"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest writes the given HCL pipeline definition to a temp file and
// creates a new app instance around it for system testing.
func SetupAppTest(t *testing.T, pipelineHCL string, cfg *Config, exec executor.Executor) (*App, *SafeBuffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	err := os.WriteFile(path, []byte(pipelineHCL), 0600)
	if err != nil {
		t.Fatalf("failed to write pipeline file: %v", err)
	}

	if cfg == nil {
		cfg = &Config{Trigger: "manual", Workers: 4}
	}
	cfg.PipelinePath = path
	cfg.LogLevel = "debug"
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	logBuffer := &SafeBuffer{}
	testApp := NewApp(logBuffer, cfg, hcl.NewLoader(), exec)

	t.Cleanup(func() {
		if os.Getenv("GRIDCI_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
