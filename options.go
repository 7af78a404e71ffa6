package gostomp

import (
	"time"

	"github.com/batchcorp/gostomp/metrics"
)

// options holds the resolved configuration for a Conn, built up by
// applying every Option passed to Dial over a set of defaults.
type options struct {
	login, passcode string
	host            string
	acceptVersion   string
	connectHeaders  []string

	heartbeatSend time.Duration
	heartbeatRecv time.Duration
	hbGrace       float64

	dialTimeout      time.Duration
	handshakeTimeout time.Duration
	receiptTimeout   time.Duration
	writeTimeout     time.Duration

	logger  Logger
	metrics *metrics.Metrics
}

func defaultOptions() *options {
	return &options{
		acceptVersion:    supportedVersion,
		heartbeatSend:    10 * time.Second,
		heartbeatRecv:    10 * time.Second,
		hbGrace:          1.5,
		dialTimeout:      10 * time.Second,
		handshakeTimeout: 10 * time.Second,
		receiptTimeout:   10 * time.Second,
		writeTimeout:     10 * time.Second,
		logger:           nopLogger{},
	}
}

// Option configures a Conn at Dial time. The namespace mirrors the
// go-stomp ConnOpt style: every option is a small constructor function
// rather than a struct literal with exported fields, so new knobs can be
// added without breaking callers.
type Option func(*options)

// WithLogin sets the "login"/"passcode" headers sent on CONNECT.
func WithLogin(login, passcode string) Option {
	return func(o *options) {
		o.login = login
		o.passcode = passcode
	}
}

// WithHost sets the virtual host sent as the "host" header on CONNECT.
// If unset, Dial uses the network address's host portion.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithAcceptVersion overrides the "accept-version" header sent on
// CONNECT. This library only speaks STOMP 1.2 itself, but a broker that
// inspects the advertised version list before version-sniffing the rest
// of the handshake may need a wider value (e.g. "1.1,1.2"). A CONNECTED
// response naming any version other than 1.2 still fails the handshake;
// one with no "version" header is accepted.
func WithAcceptVersion(v string) Option {
	return func(o *options) { o.acceptVersion = v }
}

// WithHeader adds an extra header to every CONNECT frame, useful for
// broker-specific extensions (e.g. ActiveMQ's client-id).
func WithHeader(key, value string) Option {
	return func(o *options) { o.connectHeaders = append(o.connectHeaders, key, value) }
}

// WithHeartBeat proposes the send and receive heartbeat periods offered
// to the broker. A zero duration means this side will not send (for
// send) or does not require receiving (for recv) heartbeats at all. The
// periods actually used are negotiated against the broker's own
// proposal; see frame.Negotiate.
func WithHeartBeat(send, recv time.Duration) Option {
	return func(o *options) {
		o.heartbeatSend = send
		o.heartbeatRecv = recv
	}
}

// WithHeartbeatGrace sets the multiplier applied to the negotiated
// receive period before the connection considers the broker dead.
// Defaults to 1.5.
func WithHeartbeatGrace(multiplier float64) Option {
	return func(o *options) { o.hbGrace = multiplier }
}

// WithDialTimeout bounds how long the underlying TCP dial may take.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithHandshakeTimeout bounds how long Dial waits for CONNECTED after
// the CONNECT frame is sent.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) { o.handshakeTimeout = d }
}

// WithReceiptTimeout bounds how long a receipted operation
// (SendWithReceipt, Disconnect) waits for its RECEIPT frame.
func WithReceiptTimeout(d time.Duration) Option {
	return func(o *options) { o.receiptTimeout = d }
}

// WithWriteTimeout bounds how long a single frame write to the socket
// may take before the connection is considered dead.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithLogger directs the connection's diagnostic logging at l instead of
// discarding it.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches a Prometheus instrumentation surface to the
// connection. Without this option, the connection never touches the
// metrics package.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
