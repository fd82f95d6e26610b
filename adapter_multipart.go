package binstream

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/filegrind/binstream-go/wire"
)

// MultipartAdapter moves transfers inside a multipart/mixed envelope:
// one JSON part plus one binary part per transfer, correlated by a
// Content-ID equal to the stream ID's string form. The JSON part always
// precedes or accompanies its binary part within the same envelope, so
// receivers can resolve the reference before the bytes arrive.
//
// An adapter instance is bound to one envelope, either writing
// (NewMultipartSender) or reading (NewMultipartReceiver). Parts within
// an envelope are strictly sequential; the adapter serializes access.
type MultipartAdapter struct {
	mu sync.Mutex
	mw *multipart.Writer
	mr *multipart.Reader
}

// NewMultipartSender creates an adapter writing a multipart/mixed
// envelope to w.
func NewMultipartSender(w io.Writer) *MultipartAdapter {
	return &MultipartAdapter{mw: multipart.NewWriter(w)}
}

// NewMultipartReceiver creates an adapter reading a multipart/mixed
// envelope with the given boundary from r.
func NewMultipartReceiver(r io.Reader, boundary string) *MultipartAdapter {
	return &MultipartAdapter{mr: multipart.NewReader(r, boundary)}
}

// Boundary returns the sender envelope's boundary, for the enclosing
// Content-Type header.
func (a *MultipartAdapter) Boundary() string {
	if a.mw == nil {
		return ""
	}
	return a.mw.Boundary()
}

// WriteJSONPart writes the RPC JSON part that references the binary
// part(s) that follow.
func (a *MultipartAdapter) WriteJSONPart(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mw == nil {
		return fmt.Errorf("adapter is not in sender role")
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "application/json")
	pw, err := a.mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = pw.Write(payload)
	return err
}

// ReadJSONPart advances the receiver envelope to its next JSON part and
// returns its body.
func (a *MultipartAdapter) ReadJSONPart() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mr == nil {
		return nil, fmt.Errorf("adapter is not in receiver role")
	}
	for {
		part, err := a.mr.NextPart()
		if err != nil {
			return nil, err
		}
		contentType := part.Header.Get("Content-Type")
		if strings.HasPrefix(contentType, "application/json") {
			return io.ReadAll(part)
		}
		part.Close()
	}
}

// Finish closes the sender envelope, writing the terminating boundary.
func (a *MultipartAdapter) Finish() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mw == nil {
		return fmt.Errorf("adapter is not in sender role")
	}
	return a.mw.Close()
}

// Mode implements Adapter.
func (a *MultipartAdapter) Mode() Mode {
	return ModeMultipart
}

// Open implements Adapter. Sender handles append a binary part to the
// envelope; receiver handles scan forward to the part whose Content-ID
// matches the descriptor's stream ID.
func (a *MultipartAdapter) Open(desc TransferDescriptor, role Role) (Handle, error) {
	switch role {
	case RoleSender:
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.mw == nil {
			return nil, fmt.Errorf("adapter is not in sender role")
		}
		header := textproto.MIMEHeader{}
		mimeType := desc.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		header.Set("Content-Type", mimeType)
		header.Set("Content-ID", desc.StreamID.String())
		header.Set("Content-Length", strconv.FormatUint(desc.TotalSize, 10))
		pw, err := a.mw.CreatePart(header)
		if err != nil {
			return nil, err
		}
		return &multipartSendHandle{w: pw, remaining: desc.TotalSize}, nil
	case RoleReceiver:
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.mr == nil {
			return nil, fmt.Errorf("adapter is not in receiver role")
		}
		part, err := a.findPart(desc.StreamID)
		if err != nil {
			return nil, err
		}
		return &multipartRecvHandle{part: part}, nil
	default:
		return nil, fmt.Errorf("unknown role %d", role)
	}
}

// findPart scans forward through the envelope for the binary part with
// the given Content-ID. Part ordering guarantees the target part has not
// been passed yet when the JSON part preceding it has just been read.
func (a *MultipartAdapter) findPart(id wire.StreamID) (*multipart.Part, error) {
	want := id.String()
	for {
		part, err := a.mr.NextPart()
		if err == io.EOF {
			return nil, NewNotFoundError(id)
		}
		if err != nil {
			return nil, err
		}
		if part.Header.Get("Content-ID") == want {
			return part, nil
		}
		part.Close()
	}
}

type multipartSendHandle struct {
	w         io.Writer
	remaining uint64
	closed    bool
}

func (h *multipartSendHandle) WriteChunk(p []byte) error {
	if h.closed {
		return io.ErrClosedPipe
	}
	if uint64(len(p)) > h.remaining {
		return fmt.Errorf("chunk of %d bytes exceeds remaining %d announced bytes", len(p), h.remaining)
	}
	if _, err := h.w.Write(p); err != nil {
		return err
	}
	h.remaining -= uint64(len(p))
	return nil
}

func (h *multipartSendHandle) ReadChunk(int) ([]byte, error) {
	return nil, fmt.Errorf("sender handle cannot read")
}

func (h *multipartSendHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.remaining != 0 {
		return fmt.Errorf("transfer closed %d bytes short of announced Content-Length", h.remaining)
	}
	return nil
}

type multipartRecvHandle struct {
	part   *multipart.Part
	closed bool
}

func (h *multipartRecvHandle) WriteChunk([]byte) error {
	return fmt.Errorf("receiver handle cannot write")
}

func (h *multipartRecvHandle) ReadChunk(maxBytes int) ([]byte, error) {
	if h.closed {
		return nil, io.ErrClosedPipe
	}
	if maxBytes <= 0 {
		maxBytes = wire.DefaultChunkSize
	}
	buf := make([]byte, maxBytes)
	n, err := h.part.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (h *multipartRecvHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.part.Close()
}
