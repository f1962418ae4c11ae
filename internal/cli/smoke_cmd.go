package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type smokeTarget struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Critical bool   `json:"critical"`
}

type smokeFile struct {
	Targets []smokeTarget `json:"targets"`
}

type smokeResult struct {
	Target      smokeTarget
	Status      int
	StatusMatch bool
	Envelope    bool
	Duration    time.Duration
	Err         error
}

func (r smokeResult) ok() bool {
	return r.Err == nil && r.StatusMatch && r.Envelope
}

func newSmokeCmd(app *App) *cobra.Command {
	var (
		baseURL     string
		targetsPath string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Probe a running API and verify status codes and response envelopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				baseURL = app.serverURL()
			}
			targets := defaultSmokeTargets(app.apiPrefix())
			if targetsPath != "" {
				loaded, err := loadSmokeTargets(targetsPath)
				if err != nil {
					return err
				}
				targets = loaded
			}

			client := app.HTTPClient
			if client == nil {
				client = &http.Client{}
			}
			timed := *client
			timed.Timeout = timeout

			results := make([]smokeResult, 0, len(targets))
			breaking, optional := 0, 0
			for _, t := range targets {
				res := runSmokeTarget(&timed, baseURL, t)
				if !res.ok() {
					if t.Critical {
						breaking++
					} else {
						optional++
					}
				}
				results = append(results, res)
			}

			out := cmd.OutOrStdout()
			printSmokeReport(out, results)
			fmt.Fprintf(out, "Critical failures: %d, Optional failures: %d\n", breaking, optional)
			if breaking > 0 {
				return fmt.Errorf("%d critical checks failed", breaking)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "server root URL (default http://localhost:PORT)")
	cmd.Flags().StringVar(&targetsPath, "targets", "", "JSON file of {\"targets\": [{method, path, status, critical}]}")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	return cmd
}

func defaultSmokeTargets(prefix string) []smokeTarget {
	return []smokeTarget{
		{Method: http.MethodGet, Path: "/health", Status: http.StatusOK, Critical: true},
		{Method: http.MethodGet, Path: prefix + "/semester/status", Status: http.StatusOK, Critical: true},
		{Method: http.MethodGet, Path: prefix + "/materials", Status: http.StatusOK, Critical: true},
		{Method: http.MethodGet, Path: prefix + "/courses", Status: http.StatusOK},
		{Method: http.MethodGet, Path: prefix + "/notices", Status: http.StatusOK},
		{Method: http.MethodGet, Path: prefix + "/admin/presence", Status: http.StatusUnauthorized, Critical: true},
		{Method: http.MethodGet, Path: "/ready", Status: http.StatusOK},
	}
}

func loadSmokeTargets(path string) ([]smokeTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file smokeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return file.Targets, nil
}

func runSmokeTarget(client *http.Client, base string, t smokeTarget) smokeResult {
	res := smokeResult{Target: t}
	if client == nil {
		res.Err = errors.New("nil client")
		return res
	}
	method := strings.ToUpper(strings.TrimSpace(t.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := t.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	want := t.Status
	if want == 0 {
		want = http.StatusOK
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		res.Err = err
		return res
	}
	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Err = fmt.Errorf("read body: %w", err)
		return res
	}
	res.Status = resp.StatusCode
	res.StatusMatch = resp.StatusCode == want
	res.Envelope = hasEnvelope(resp.Header.Get("Content-Type"), body)
	return res
}

// hasEnvelope accepts non-JSON bodies (metrics), probe bodies with a status field and API
// bodies carrying data or error.
func hasEnvelope(contentType string, body []byte) bool {
	if !strings.Contains(contentType, "application/json") {
		return true
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &env); err != nil {
		return false
	}
	for _, key := range []string{"data", "error", "status"} {
		if _, ok := env[key]; ok {
			return true
		}
	}
	return false
}

func printSmokeReport(out io.Writer, results []smokeResult) {
	fmt.Fprintln(out, "Smoke Report")
	fmt.Fprintln(out, "============")
	for _, res := range results {
		status := "OK"
		if res.Err != nil {
			status = "ERROR"
		} else if !res.ok() {
			status = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %s %s\n", status, res.Target.Method, res.Target.Path)
		if res.Err != nil {
			fmt.Fprintf(out, "  Error: %v\n", res.Err)
			continue
		}
		fmt.Fprintf(out, "  Status: %d (%s) | Envelope: %t | Critical: %t\n", res.Status, res.Duration.Round(time.Millisecond), res.Envelope, res.Target.Critical)
	}
}
