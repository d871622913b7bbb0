package at

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when the serial link is gone.
	ErrClosed = errors.New("at: transport closed")
	// ErrTimeout is returned by WaitURC when no matching notification
	// arrives within the timeout.
	ErrTimeout = errors.New("at: timed out waiting for notification")
)

// OpenPort opens the serial port. Swappable for tests.
var OpenPort = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(cfg)
}

// resyncTimeout bounds the AT ping used to realign after a timed-out
// exchange.
const resyncTimeout = 2 * time.Second

// event is one unit from the read loop: a framed line, or a raw payload
// chunk announced by a data header line. Payload bytes bypass line framing,
// so a body containing "OK" or CRLF survives intact.
type event struct {
	line    string
	payload []byte
}

// Transport is a strictly request/response AT command channel: one command
// in flight at a time, each exchange blocking until a terminator line or
// the timeout. Unsolicited result codes (URCs) arriving outside a command
// window are queued for WaitURC.
type Transport struct {
	mu   sync.Mutex // serializes command exchanges on the shared link
	port io.ReadWriteCloser

	lines chan event
	urcs  chan string
	done  chan struct{}

	urcPrefixes []string
	dataPrefix  string
	log         *zap.Logger

	stale bool // a previous exchange timed out; its reply may still be in flight

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Transport)

// WithLogger attaches a logger; wire traffic is logged at debug level.
func WithLogger(log *zap.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithURCPrefixes declares the unsolicited notification prefixes the modem
// profile uses (e.g. "+HTTPACTION:"). Lines matching a prefix are routed to
// WaitURC instead of the current command's response.
func WithURCPrefixes(prefixes ...string) Option {
	return func(t *Transport) { t.urcPrefixes = prefixes }
}

// WithDataPrefix declares the header line that announces a raw payload
// (e.g. "+HTTPREAD:"). Its last integer argument is the number of raw bytes
// that follow on the wire; the read loop consumes exactly that many bytes
// without line framing.
func WithDataPrefix(prefix string) Option {
	return func(t *Transport) { t.dataPrefix = prefix }
}

// Open opens the serial port and starts the read loop.
func Open(cfg *serial.Config, opts ...Option) (*Transport, error) {
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return NewTransport(port, opts...), nil
}

// NewTransport wraps an already-open serial link.
func NewTransport(port io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{
		port:  port,
		lines: make(chan event),
		urcs:  make(chan string, 16),
		done:  make(chan struct{}),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log.Core().Enabled(zap.DebugLevel) {
		t.port = traceReadWriteCloser{rwc: port, log: t.log}
	}
	go t.readLoop()
	return t
}

// readLoop feeds non-empty lines from the modem into t.lines. When a line
// matches the data prefix, the announced number of raw bytes is read next,
// unframed. The loop exits, closing t.lines, when the port read fails
// (normally after Close).
func (t *Transport) readLoop() {
	defer close(t.lines)
	r := bufio.NewReader(t.port)
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			if !t.emit(event{line: trimmed}) {
				return
			}
			if n, ok := t.payloadLength(trimmed); ok {
				buf := make([]byte, n)
				if _, rerr := io.ReadFull(r, buf); rerr != nil {
					return
				}
				if !t.emit(event{payload: buf}) {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *Transport) emit(ev event) bool {
	select {
	case t.lines <- ev:
		return true
	case <-t.done:
		return false
	}
}

// payloadLength parses the byte count from a data header line, e.g.
// "+HTTPREAD: 17" or "+HTTPREAD: DATA,17".
func (t *Transport) payloadLength(line string) (int, bool) {
	if t.dataPrefix == "" || !strings.HasPrefix(line, t.dataPrefix) {
		return 0, false
	}
	fields := strings.Split(line[len(t.dataPrefix):], ",")
	n, err := strconv.Atoi(strings.TrimSpace(fields[len(fields)-1]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (t *Transport) isURC(line string) bool {
	for _, p := range t.urcPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// stashURC queues an out-of-band notification, dropping the oldest when the
// queue is full.
func (t *Transport) stashURC(line string) {
	for {
		select {
		case t.urcs <- line:
			return
		default:
			select {
			case old := <-t.urcs:
				t.log.Warn("urc queue full, dropping", zap.String("urc", old))
			default:
			}
		}
	}
}

// Exec writes the command and blocks until a terminator line arrives or the
// timeout elapses. A timeout yields Outcome==OutcomeTimeout with whatever
// lines were collected; it is never reported as complete.
func (t *Transport) Exec(ctx context.Context, cmd Command, timeout time.Duration) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stale {
		t.resync(ctx)
	}
	if err := t.write(cmd.Wire()); err != nil {
		return nil, err
	}
	return t.collect(ctx, cmd.Wire(), timeout, "")
}

// Upload performs the two-phase body upload: it writes the announce command
// (HTTPDATA), waits for the module's prompt, writes the raw payload, then
// waits for the terminator.
func (t *Transport) Upload(ctx context.Context, cmd Command, prompt string, payload []byte, timeout time.Duration) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stale {
		t.resync(ctx)
	}
	if err := t.write(cmd.Wire()); err != nil {
		return nil, err
	}
	res, err := t.collect(ctx, cmd.Wire(), timeout, prompt)
	if err != nil || !res.Completed() {
		return res, err
	}
	if res.Final != prompt {
		// Module refused the upload (ERROR before the prompt).
		return res, nil
	}
	if _, err := t.port.Write(payload); err != nil {
		return nil, err
	}
	return t.collect(ctx, "", timeout, "")
}

// WaitURC blocks until a notification with the given prefix arrives, either
// from the backlog or live from the modem.
func (t *Transport) WaitURC(ctx context.Context, prefix string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line := <-t.urcs:
			if strings.HasPrefix(line, prefix) {
				return line, nil
			}
			t.log.Debug("ignoring unrelated urc", zap.String("line", line))
		case ev, ok := <-t.lines:
			if !ok {
				return "", ErrClosed
			}
			if ev.payload != nil {
				t.log.Debug("ignoring payload outside command window", zap.Int("bytes", len(ev.payload)))
				continue
			}
			if strings.HasPrefix(ev.line, prefix) {
				return ev.line, nil
			}
			if t.isURC(ev.line) {
				t.stashURC(ev.line)
			} else {
				t.log.Debug("ignoring line outside command window", zap.String("line", ev.line))
			}
		case <-timer.C:
			return "", ErrTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (t *Transport) write(line string) error {
	if _, err := t.port.Write([]byte(line + "\r\n")); err != nil {
		return err
	}
	return nil
}

// collect accumulates response lines until a terminator (or the given
// prompt) appears, routing URCs aside and skipping the command echo.
func (t *Transport) collect(ctx context.Context, echo string, timeout time.Duration, prompt string) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	res := &Result{Outcome: OutcomeComplete}
	for {
		select {
		case ev, ok := <-t.lines:
			if !ok {
				return nil, ErrClosed
			}
			if ev.payload != nil {
				res.Data = append(res.Data, ev.payload...)
				continue
			}
			line := ev.line
			switch {
			case echo != "" && line == echo:
				// echo of our own command
			case prompt != "" && line == prompt:
				res.Final = line
				return res, nil
			case isTerminator(line):
				res.Final = line
				return res, nil
			case t.isURC(line):
				t.stashURC(line)
			default:
				res.Lines = append(res.Lines, line)
			}
		case <-timer.C:
			t.stale = true
			res.Outcome = OutcomeTimeout
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// resync realigns the exchange after a timed-out command: lines already
// delivered for the abandoned exchange are discarded, then an AT ping is
// issued so the next real command starts on a clean prompt. Called with
// t.mu held.
func (t *Transport) resync(ctx context.Context) {
	t.drainPending()
	if err := t.write((Attention{}).Wire()); err != nil {
		return
	}
	res, err := t.collect(ctx, (Attention{}).Wire(), resyncTimeout, "")
	if err != nil || !res.Succeeded() {
		t.log.Warn("resync ping did not complete; link still unsynchronized")
		return
	}
	t.stale = false
}

// drainPending consumes whatever the read loop has already delivered
// without blocking, keeping URCs and dropping everything else.
func (t *Transport) drainPending() {
	for {
		select {
		case ev, ok := <-t.lines:
			if !ok {
				return
			}
			if ev.payload == nil && t.isURC(ev.line) {
				t.stashURC(ev.line)
				continue
			}
			t.log.Debug("discarding stale line", zap.String("line", ev.line))
		default:
			return
		}
	}
}

// Close shuts the serial link down; the read loop exits on the next read.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.closeErr = t.port.Close()
	})
	return t.closeErr
}
