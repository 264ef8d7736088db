package appserver

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/zhubert/codexmonitor/protocol"
)

// maxLineSize bounds a single stdout or stderr line. Thread histories can
// be large, so this is far above bufio's default.
const maxLineSize = 16 * 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

func (s *Session) startReaders(stdout, stderr io.Reader) {
	go s.readStdout(stdout)
	if stderr != nil {
		go s.readStderr(stderr)
	}
}

// readStdout routes each line until EOF. The end of stdout terminates the
// session. A read error, such as a line over maxLineSize, kills the
// process; the rest of the stream is discarded so the writer never blocks.
func (s *Session) readStdout(r io.Reader) {
	defer close(s.stdoutDone)
	defer s.terminate("stdout closed")

	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.handleLine(line)
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("stdout read failed, killing app-server", "error", err)
		s.terminate("stdout read failed")
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Session) handleLine(line []byte) {
	in, err := protocol.Decode(line)
	if err != nil {
		s.emit(protocol.ParseErrorEvent(s.entry.ID, err, string(line)))
		return
	}

	switch in.Kind {
	case protocol.KindReply, protocol.KindOrphan:
		if !s.pending.resolve(in.ID, in.Raw) {
			s.log.Debug("dropping reply with no pending call", "id", in.ID)
		}
	case protocol.KindServerRequest, protocol.KindNotification:
		s.emit(protocol.Event{WorkspaceID: s.entry.ID, Message: in.Raw})
	default:
		s.log.Debug("ignoring message", "line", string(in.Raw))
	}
}

// readStderr forwards each non-blank stderr line as a codex/stderr event.
// It never terminates the session. After a read error stderr is drained
// without forwarding.
func (s *Session) readStderr(r io.Reader) {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.emit(protocol.StderrEvent(s.entry.ID, line))
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("stderr read failed, discarding the rest", "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
