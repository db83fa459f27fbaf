package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestWarnGoesToErrorStream(t *testing.T) {
	var out, errBuf bytes.Buffer
	l := Logger{Out: &out, Err: &errBuf}

	l.Warnf("%s parse error: %s", "bad.json", "unexpected EOF")

	if out.Len() != 0 {
		t.Errorf("expected nothing on stdout, got %q", out.String())
	}
	if got := errBuf.String(); got != "[warn] bad.json parse error: unexpected EOF\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestInfoRequiresVerbose(t *testing.T) {
	var out bytes.Buffer
	l := Logger{Out: &out}
	l.Infof("quiet")
	if out.Len() != 0 {
		t.Errorf("expected no info output without --verbose, got %q", out.String())
	}

	l.Verbose = true
	l.Infof("loud")
	if !strings.Contains(out.String(), "[info] loud") {
		t.Errorf("expected info output with --verbose, got %q", out.String())
	}
}

func TestDebugRequiresDebug(t *testing.T) {
	var out bytes.Buffer
	l := Logger{Verbose: true, Out: &out}
	l.Debugf("hidden")
	if out.Len() != 0 {
		t.Errorf("expected no debug output without --debug, got %q", out.String())
	}

	l.Debug = true
	l.Debugf("shown %d", 1)
	if !strings.Contains(out.String(), "[debug] shown 1") {
		t.Errorf("expected debug output, got %q", out.String())
	}
}
