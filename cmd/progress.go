package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"github.com/cdtdelta/oci-audit-csv/internal/logging"
)

// progress forwards pipeline messages to the logger. Outside verbose and
// debug mode it drives a spinner instead, showing the latest info message
// as its suffix and pausing it while a warning is printed.
type progress struct {
	log logging.Logger

	mu sync.Mutex
	s  *spinner.Spinner
}

func startProgress(log logging.Logger, w io.Writer, message string) *progress {
	p := &progress{log: log}
	if log.Verbose || log.Debug {
		log.Infof("%s", message)
		return p
	}

	opt := spinner.WithWriter(w)
	if f, ok := w.(*os.File); ok {
		opt = spinner.WithWriterFile(f)
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, opt)
	s.Suffix = " " + message
	if err := s.Color("cyan"); err != nil {
		log.Debugf("Failed to set spinner color: %v", err)
	}
	s.Start()
	p.s = s
	return p
}

func (p *progress) Infof(msg string, args ...any) {
	if p.s == nil {
		p.log.Infof(msg, args...)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Lock()
	p.s.Suffix = " " + fmt.Sprintf(msg, args...)
	p.s.Unlock()
}

func (p *progress) Debugf(msg string, args ...any) {
	p.log.Debugf(msg, args...)
}

// Warnf is called from the discovery workers concurrently.
func (p *progress) Warnf(msg string, args ...any) {
	if p.s == nil {
		p.log.Warnf(msg, args...)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Stop()
	p.log.Warnf(msg, args...)
	p.s.Start()
}

// Stop clears the spinner line.
func (p *progress) Stop() {
	if p.s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Stop()
}
