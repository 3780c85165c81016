// Package whisperproc manages a whisper-server child process so the gateway
// can run self-contained without an externally operated ASR backend.
package whisperproc

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type Config struct {
	Bin       string // whisper-server binary path
	ModelsDir string
	Model     string // model filename under ModelsDir, e.g. ggml-base.en.bin
	Port      int
	Threads   int
}

// Server is a supervised whisper-server process. Start launches it and waits
// for it to answer health checks; Stop kills it and reaps the child.
type Server struct {
	cfg Config
	cmd *exec.Cmd
}

func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// URL returns the base URL the managed server listens on.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.cfg.Port)
}

func (s *Server) Start() error {
	modelPath := filepath.Join(s.cfg.ModelsDir, s.cfg.Model)
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("whisper model %s: %w", modelPath, err)
	}

	cmd := exec.Command(s.cfg.Bin,
		"-m", modelPath,
		"--host", "127.0.0.1",
		"--port", fmt.Sprint(s.cfg.Port),
		"-t", fmt.Sprint(s.cfg.Threads),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start whisper-server: %w", err)
	}
	s.cmd = cmd

	slog.Info("waiting for whisper-server health", "port", s.cfg.Port, "model", s.cfg.Model)
	if err := waitForHealth(s.URL(), 30*time.Second); err != nil {
		s.Stop()
		return err
	}
	slog.Info("whisper-server ready", "port", s.cfg.Port)
	return nil
}

func (s *Server) Stop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	s.cmd.Process.Kill()
	s.cmd.Wait()
	s.cmd = nil
	slog.Info("whisper-server stopped")
}

// waitForHealth polls a URL until it returns 200 or the timeout expires.
func waitForHealth(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if healthOK(client, url) {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("whisper-server health check timed out after %s", timeout)
}

func healthOK(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
