package frame

import "strconv"

// STOMP 1.2 header names. Commands use an upper-case naming convention;
// header names use lower-case, hyphenated names as they appear on the wire.
const (
	ContentLength = "content-length"
	ContentType   = "content-type"
	Receipt       = "receipt"
	AcceptVersion = "accept-version"
	Host          = "host"
	Version       = "version"
	Login         = "login"
	Passcode      = "passcode"
	HeartBeat     = "heart-beat"
	Session       = "session"
	Server        = "server"
	Destination   = "destination"
	Id            = "id"
	Ack           = "ack"
	Transaction   = "transaction"
	ReceiptId     = "receipt-id"
	Subscription  = "subscription"
	MessageId     = "message-id"
	Message       = "message"
	ClientId      = "client-id"
)

// Header represents the header section of a STOMP frame: an ordered list
// of (name, value) entries. STOMP permits duplicate header names on the
// wire; per STOMP 1.2 the first occurrence of a given name wins on lookup,
// and wire order is preserved verbatim on encode.
type Header struct {
	slice []string
}

// NewHeader creates a Header populated with the given name/value pairs.
// headerEntries must have an even length; a trailing odd entry gets an
// empty value appended.
func NewHeader(headerEntries ...string) *Header {
	h := &Header{}
	h.slice = append(h.slice, headerEntries...)
	if len(h.slice)%2 != 0 {
		h.slice = append(h.slice, "")
	}
	return h
}

// Add appends a (key, value) header entry, preserving any existing
// entries with the same key (duplicates are permitted on the wire).
func (h *Header) Add(key, value string) {
	h.slice = append(h.slice, key, value)
}

// Set replaces the first entry with the given key, or appends a new one
// if the key is not already present.
func (h *Header) Set(key, value string) {
	if i, ok := h.index(key); ok {
		h.slice[i+1] = value
	} else {
		h.slice = append(h.slice, key, value)
	}
}

// Get returns the value of the first entry with the given key, or "" if
// there is none.
func (h *Header) Get(key string) string {
	value, _ := h.Contains(key)
	return value
}

// Contains returns the value of the first entry with the given key and
// whether it was found.
func (h *Header) Contains(key string) (value string, ok bool) {
	var i int
	if i, ok = h.index(key); ok {
		value = h.slice[i+1]
	}
	return
}

// GetAll returns every value associated with key, in wire order.
func (h *Header) GetAll(key string) []string {
	var values []string
	for i := 0; i < len(h.slice); i += 2 {
		if h.slice[i] == key {
			values = append(values, h.slice[i+1])
		}
	}
	return values
}

// GetAt returns the key/value pair at the given zero-based entry index.
// It panics if index is out of range.
func (h *Header) GetAt(index int) (key, value string) {
	index *= 2
	return h.slice[index], h.slice[index+1]
}

// Len returns the number of header entries, including duplicates.
func (h *Header) Len() int {
	return len(h.slice) / 2
}

// Del removes every entry with the given key.
func (h *Header) Del(key string) {
	for i, ok := h.index(key); ok; i, ok = h.index(key) {
		h.slice = append(h.slice[:i], h.slice[i+2:]...)
	}
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	if h == nil {
		return &Header{}
	}
	hc := &Header{slice: make([]string, len(h.slice))}
	copy(hc.slice, h.slice)
	return hc
}

// Entries returns the header as a flat (key, value, key, value, ...)
// slice in wire order, suitable for replaying onto a resubscribe frame.
func (h *Header) Entries() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.slice))
	copy(out, h.slice)
	return out
}

// ContentLength returns the parsed value of the content-length header.
// ok is false if the header is absent; err is non-nil if it is present
// but not a valid non-negative integer.
func (h *Header) ContentLength() (value int, ok bool, err error) {
	text, ok := h.Contains(ContentLength)
	if !ok {
		return 0, false, nil
	}
	n, perr := strconv.ParseUint(text, 10, 32)
	if perr != nil {
		return 0, true, perr
	}
	return int(n), true, nil
}

func (h *Header) index(key string) (int, bool) {
	for i := 0; i < len(h.slice); i += 2 {
		if h.slice[i] == key {
			return i, true
		}
	}
	return -1, false
}
