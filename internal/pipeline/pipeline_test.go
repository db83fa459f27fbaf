package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cdtdelta/oci-audit-csv/internal/config"
)

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Warnf(msg string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(msg, args...))
}

const sampleEvent = `{
  "cloud-events-version": "0.1",
  "content-type": "application/json",
  "event-type": "com.oraclecloud.computeapi.launchinstance.begin",
  "event-id": "ev-1",
  "event-time": "2024-03-01T10:00:00Z",
  "source": "ComputeApi",
  "data": {
    "event-name": "LaunchInstance",
    "compartment-id": "ocid1.compartment.oc1..aaa",
    "identity": {"principal-name": "alice", "ip-address": "203.0.113.7"},
    "request": {"action": "POST", "headers": {"X-Forwarded-For": ["203.0.113.7", "10.0.0.1"]}},
    "response": {"status": "200"},
    "additional-details": {"imageId": "ocid1.image", "shape": "VM.Standard2.1"},
    "state-change": {"previous": {"lifecycleState": "PROVISIONING"}, "current": {"lifecycleState": "RUNNING"}}
  }
}`

func writeTempFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	return rows
}

func testConfig(t *testing.T, input string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputFolder = input
	cfg.OutputPrefix = filepath.Join(t.TempDir(), "audit_logs")
	return cfg
}

// column returns the values of name across the data rows of a parsed CSV.
func column(t *testing.T, rows [][]string, name string) []string {
	t.Helper()
	idx := slices.Index(rows[0], name)
	if idx < 0 {
		t.Fatalf("column %q missing from header %v", name, rows[0])
	}
	var out []string
	for _, r := range rows[1:] {
		out = append(out, r[idx])
	}
	return out
}

func TestRunEndToEnd(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "a.json", `{"data": [`+sampleEvent+`]}`)
	writeTempFile(t, in, "b.json", `[{"event-id": "ev-2", "extra-field": "x"}]`)
	writeTempFile(t, in, "notes.txt", `ignored`)

	cfg := testConfig(t, in)
	sum, err := Run(context.Background(), cfg, &recordingLogger{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Files != 2 {
		t.Errorf("Files = %d, want 2", sum.Files)
	}
	if sum.Events != 2 {
		t.Errorf("Events = %d, want 2", sum.Events)
	}

	full := readCSV(t, sum.FullPath)
	if !slices.IsSorted(full[0]) {
		t.Errorf("full header should be sorted: %v", full[0])
	}
	if len(full) != 3 {
		t.Fatalf("expected header + 2 rows in full report, got %d", len(full))
	}

	if got := column(t, full, "data.identity.principal-name"); got[0] != "alice" || got[1] != "" {
		t.Errorf("data.identity.principal-name = %v", got)
	}
	if got := column(t, full, "event-id"); got[1] != "ev-2" {
		t.Errorf("event-id = %v", got)
	}

	forensicRows := readCSV(t, sum.ForensicPath)
	for _, c := range forensicRows[0] {
		if !slices.Contains(full[0], c) {
			t.Errorf("forensic column %q not in full report", c)
		}
	}
}

func TestRunForensicColumns(t *testing.T) {
	in := t.TempDir()
	// A bare envelope would be unwrapped through its own "data" key.
	writeTempFile(t, in, "event.json", `[`+sampleEvent+`]`)

	sum, err := Run(context.Background(), testConfig(t, in), &recordingLogger{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"cloud-events-version",
		"content-type",
		"event-type",
		"source",
		"event-id",
		"event-time",
		"data.event-name",
		"data.compartment-id",
		"data.identity.principal-name",
		"data.identity.ip-address",
		"data.request.action",
		"data.request.headers.X-Forwarded-For",
		"data.response.status",
		"data.additional-details",
		"data.state-change.previous.lifecycleState",
		"data.state-change.current.lifecycleState",
	}
	if !slices.Equal(sum.ForensicColumns, want) {
		t.Errorf("ForensicColumns =\n%v\nwant\n%v", sum.ForensicColumns, want)
	}

	rows := readCSV(t, sum.ForensicPath)
	if got := column(t, rows, "data.request.headers.X-Forwarded-For"); got[0] != "203.0.113.7,10.0.0.1" {
		t.Errorf("X-Forwarded-For = %q", got[0])
	}
	if got := column(t, rows, "data.additional-details"); got[0] != `{"imageId":"ocid1.image","shape":"VM.Standard2.1"}` {
		t.Errorf("additional-details = %q", got[0])
	}
	if got := column(t, rows, "data.state-change.current.lifecycleState"); got[0] != "RUNNING" {
		t.Errorf("current.lifecycleState = %q", got[0])
	}
}

func TestRunMalformedFileTolerance(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "good.json", `{"data": {"event-id": "1"}}`)
	writeTempFile(t, in, "bad.json", `{"data": [`)

	log := &recordingLogger{}
	sum, err := Run(context.Background(), testConfig(t, in), log)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Events != 1 {
		t.Errorf("Events = %d, want 1", sum.Events)
	}

	rows := readCSV(t, sum.FullPath)
	if len(rows) != 2 || rows[1][0] != "1" {
		t.Errorf("full report = %v", rows)
	}

	if len(log.warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", log.warnings)
	}
	if !strings.Contains(log.warnings[0], "bad.json") {
		t.Errorf("warning should mention bad.json: %q", log.warnings[0])
	}
}

func TestRunWrapperNormalization(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "list.json", `{"data": [{"event-id": "1"}, {"event-id": "2"}]}`)
	writeTempFile(t, in, "single.json", `{"data": {"event-id": "3"}}`)

	sum, err := Run(context.Background(), testConfig(t, in), &recordingLogger{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rows := readCSV(t, sum.FullPath)
	got := column(t, rows, "event-id")
	if !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("event-id rows = %v, want [1 2 3]", got)
	}
}

func TestRunDeterministic(t *testing.T) {
	in := t.TempDir()
	for i := 0; i < 12; i++ {
		writeTempFile(t, in, fmt.Sprintf("f%02d.json", i),
			fmt.Sprintf(`[{"event-id": "%d", "data": {"k%d": %d, "shared": [1, 2]}}]`, i, i%4, i))
	}

	cfg := testConfig(t, in)
	cfg.Workers = 6

	run := func() ([]byte, []byte) {
		sum, err := Run(context.Background(), cfg, &recordingLogger{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		full, _ := os.ReadFile(sum.FullPath)
		frc, _ := os.ReadFile(sum.ForensicPath)
		return full, frc
	}

	full1, frc1 := run()
	full2, frc2 := run()
	if !bytes.Equal(full1, full2) {
		t.Error("full report differs between identical runs")
	}
	if !bytes.Equal(frc1, frc2) {
		t.Error("forensic report differs between identical runs")
	}
}

func TestRunNoInputFiles(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "readme.md", "nothing here")

	_, err := Run(context.Background(), testConfig(t, in), &recordingLogger{})
	if !errors.Is(err, ErrNoInputFiles) {
		t.Errorf("expected ErrNoInputFiles, got %v", err)
	}
}

func TestRunMissingInputFolder(t *testing.T) {
	_, err := Run(context.Background(), testConfig(t, filepath.Join(t.TempDir(), "gone")), &recordingLogger{})
	if err == nil {
		t.Error("expected error for missing input folder, got nil")
	}
}

func TestRunUnwritableOutput(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "a.json", `{"event-id": "1"}`)

	cfg := testConfig(t, in)
	cfg.OutputPrefix = filepath.Join(t.TempDir(), "no", "such", "dir", "audit")

	_, err := Run(context.Background(), cfg, &recordingLogger{})
	if !errors.Is(err, ErrOutput) {
		t.Errorf("expected ErrOutput, got %v", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Workers = 0

	_, err := Run(context.Background(), cfg, &recordingLogger{})
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected config.ErrInvalid, got %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "a.json", `{"event-id": "1"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(t, in), &recordingLogger{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunSQLiteExport(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "a.json", `{"data": [{"event-id": "1", "source": "x"}, {"event-id": "2"}]}`)

	cfg := testConfig(t, in)
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	cfg.Database = config.Database{Driver: "sqlite", DSN: dbPath}

	sum, err := Run(context.Background(), cfg, &recordingLogger{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.DatabaseRows != 2 {
		t.Errorf("DatabaseRows = %d, want 2", sum.DatabaseRows)
	}
	if sum.DatabasePath != dbPath {
		t.Errorf("DatabasePath = %q, want %q", sum.DatabasePath, dbPath)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM audit_events WHERE run_id = ?", sum.RunID).Scan(&n); err != nil {
		t.Fatalf("counting exported rows: %v", err)
	}
	if n != len(readCSV(t, sum.FullPath))-1 {
		t.Errorf("exported %d rows, CSV has %d", n, len(readCSV(t, sum.FullPath))-1)
	}
}

func TestRunKeepsReportsWhenExportFails(t *testing.T) {
	in := t.TempDir()
	writeTempFile(t, in, "a.json", `{"data": [
		{"data": {"request": {"headers": {"User-Agent": "a"}}}},
		{"data": {"request": {"headers": {"user-agent": "b"}}}}
	]}`)

	cfg := testConfig(t, in)
	cfg.Database = config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")}

	sum, err := Run(context.Background(), cfg, &recordingLogger{})
	if !errors.Is(err, ErrOutput) {
		t.Fatalf("expected ErrOutput for the failed export, got %v", err)
	}
	if !strings.Contains(err.Error(), "letter case") {
		t.Errorf("error should name the case collision: %v", err)
	}
	if sum == nil {
		t.Fatal("expected a summary alongside the export error")
	}
	if sum.DatabaseRows != 0 {
		t.Errorf("DatabaseRows = %d, want 0", sum.DatabaseRows)
	}

	rows := readCSV(t, sum.FullPath)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows in full report, got %d", len(rows))
	}
	if got := column(t, rows, "data.request.headers.User-Agent"); got[0] != "a" {
		t.Errorf("User-Agent = %v", got)
	}
	if got := column(t, rows, "data.request.headers.user-agent"); got[1] != "b" {
		t.Errorf("user-agent = %v", got)
	}
	if _, err := os.Stat(sum.ForensicPath); err != nil {
		t.Errorf("expected forensic report: %v", err)
	}
}

func TestListInputFilesSorted(t *testing.T) {
	in := t.TempDir()
	for _, name := range []string{"c.json", "a.json", "b.JSON", "b.json"} {
		writeTempFile(t, in, name, "{}")
	}
	if err := os.Mkdir(filepath.Join(in, "dir.json"), 0755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}

	files, err := ListInputFiles(in)
	if err != nil {
		t.Fatalf("ListInputFiles failed: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if !slices.Equal(names, []string{"a.json", "b.json", "c.json"}) {
		t.Errorf("files = %v", names)
	}
}
