//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/obsidian/internal/storage"
	"github.com/cloo-solutions/obsidian/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testBucket  = "test-documents"
	rustfsCreds = "rustfsadmin"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	S3Client   *storage.S3Client
	BinaryDir  string
	ServerURL  string
	HTTPClient *http.Client

	port      int
	daemon    *exec.Cmd
	daemonLog *bytes.Buffer
}

// SetupE2EEnv starts Postgres and RustFS, builds both binaries and starts
// obsidiand against the containers.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     rustfsCreds,
		SecretAccessKey: rustfsCreds,
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		S3Client:   s3Client,
		ServerURL:  fmt.Sprintf("http://localhost:%d", port),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		port:       port,
	}

	env.BuildBinaries()
	env.StartDaemon()
	// The daemon applies migrations, so connect only once it is up.
	env.Pool = testutil.NewPool(ctx, t, pgC)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	e.StopDaemon()
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries compiles obsidiand and obsidian into a temp dir.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "obsidian-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"obsidiand", "obsidian"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

func (e *E2ETestEnv) daemonEnv() []string {
	return append(os.Environ(),
		"OBSIDIAN_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"OBSIDIAN_S3_ENDPOINT="+e.RustFSC.Endpoint(),
		"OBSIDIAN_S3_ACCESS_KEY_ID="+rustfsCreds,
		"OBSIDIAN_S3_SECRET_ACCESS_KEY="+rustfsCreds,
		"OBSIDIAN_S3_BUCKET="+testBucket,
		"OBSIDIAN_OPENAI_API_KEY=",
		"OBSIDIAN_CHUNK_WINDOW_TOKENS=40",
		"OBSIDIAN_CHUNK_OVERLAP_TOKENS=8",
		"OBSIDIAN_REBUILD_INTERVAL=0s",
		"OBSIDIAN_LOG_FORMAT=console",
	)
}

// StartDaemon runs obsidiand serve and waits until it reports healthy.
func (e *E2ETestEnv) StartDaemon() {
	migrations, err := filepath.Abs("../../migrations")
	if err != nil {
		e.T.Fatalf("failed to resolve migrations dir: %v", err)
	}

	e.daemonLog = &bytes.Buffer{}
	cmd := exec.Command(filepath.Join(e.BinaryDir, "obsidiand"), "serve",
		"--port", fmt.Sprint(e.port),
		"--migrations", "file://"+migrations,
	)
	cmd.Env = e.daemonEnv()
	cmd.Stdout = e.daemonLog
	cmd.Stderr = e.daemonLog
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start obsidiand: %v", err)
	}
	e.daemon = cmd

	e.waitForServer(30 * time.Second)
}

// StopDaemon sends SIGINT and waits for a graceful exit.
func (e *E2ETestEnv) StopDaemon() {
	if e.daemon == nil || e.daemon.Process == nil {
		return
	}
	_ = e.daemon.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- e.daemon.Wait() }()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		_ = e.daemon.Process.Kill()
		<-done
	}
	e.daemon = nil
}

// RunObsidiand runs a one-shot obsidiand command such as rebuild and
// returns its stdout. Logs go to stderr and are folded into the error.
func (e *E2ETestEnv) RunObsidiand(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "obsidiand"), args...)
	cmd.Env = e.daemonEnv()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%w\n%s", err, stderr.String())
	}
	return string(out), nil
}

// RunObsidian runs the obsidian CLI against the daemon.
func (e *E2ETestEnv) RunObsidian(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "obsidian"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "OBSIDIAN_API_URL="+e.ServerURL)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body any) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			return nil, fmt.Errorf("failed to parse response (status %d): %s", resp.StatusCode, respBody)
		}
	}
	return apiResp, nil
}

// WaitForIndex polls /admin/index until an active version exists.
func (e *E2ETestEnv) WaitForIndex(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/admin/index")
		if err == nil && resp.StatusCode == http.StatusOK {
			var status struct {
				Ready bool `json:"ready"`
			}
			if json.Unmarshal(resp.Data, &status) == nil && status.Ready {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("index not ready within %v\n%s", timeout, e.daemonLog)
}

func (e *E2ETestEnv) waitForServer(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(e.ServerURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("server did not start within %v\n%s", timeout, e.daemonLog)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
