// Package wire defines the request and response datagrams exchanged between
// clients and the server, and their XDR encoding.
//
// Every request travels in a single datagram and every response fits in a
// single datagram. The payload cap is a protocol constant: a read can never
// return more than MaxPayload bytes.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	xdr "github.com/rasky/go-xdr/xdr2"
)

const (
	// MaxPayload is the maximum number of result bytes in a response.
	MaxPayload = 80

	// MaxMachine is the maximum length of a declared machine name.
	MaxMachine = 24

	// MaxOperation is the maximum length of the operation text.
	MaxOperation = 80

	// MaxClientIP is the maximum length of the dotted client address field.
	MaxClientIP = 16

	// MaxDatagram bounds the size of any encoded request or response. Larger
	// datagrams are rejected before decoding.
	MaxDatagram = 512
)

var (
	// ErrDatagramTooLarge is returned for datagrams over MaxDatagram bytes.
	ErrDatagramTooLarge = errors.New("datagram too large")

	// ErrTrailingData is returned when a datagram has bytes after the message.
	ErrTrailingData = errors.New("trailing data after message")
)

// Request is a client operation request.
type Request struct {
	ClientIP    string // Filled in by the server from the datagram source
	Machine     string // Name of the machine the client runs on
	ClientID    int32  // Client number on that machine
	Sequence    int32  // Request number, strictly increasing per client
	Incarnation int32  // Bumped by the client after a crash
	Operation   string // e.g. "open notes.txt readwrite"
}

// Response is the result of a request.
type Response struct {
	Status  int32
	Size    int32
	Payload []byte
}

// Validate checks field bounds.
func (r *Request) Validate() error {
	switch {
	case r.Machine == "":
		return errors.New("empty machine name")
	case len(r.Machine) > MaxMachine:
		return fmt.Errorf("machine name exceeds %d bytes", MaxMachine)
	case strings.ContainsRune(r.Machine, ':'):
		// ':' separates machine and filename in storage and lock keys.
		return errors.New("machine name contains ':'")
	case len(r.Operation) > MaxOperation:
		return fmt.Errorf("operation exceeds %d bytes", MaxOperation)
	case len(r.ClientIP) > MaxClientIP:
		return fmt.Errorf("client ip exceeds %d bytes", MaxClientIP)
	}
	return nil
}

// Validate checks the payload cap. Size is the byte count of the operation
// (bytes read or written) and only equals len(Payload) for reads.
func (r *Response) Validate() error {
	if len(r.Payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(r.Payload), MaxPayload)
	}
	if r.Size < 0 {
		return fmt.Errorf("negative size %d", r.Size)
	}
	return nil
}

// Equal reports whether two responses carry the same status, size and payload.
func (r *Response) Equal(o *Response) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Status == o.Status && r.Size == o.Size && bytes.Equal(r.Payload, o.Payload)
}

// EncodeRequest serializes a request into a datagram.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return encode(req)
}

// DecodeRequest parses a request datagram.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := decode(data, req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// EncodeResponse serializes a response into a datagram.
func EncodeResponse(resp *Response) ([]byte, error) {
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return encode(resp)
}

// DecodeResponse parses a response datagram.
func DecodeResponse(data []byte) (*Response, error) {
	resp := &Response{}
	if err := decode(data, resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, err
	}
	if buf.Len() > MaxDatagram {
		return nil, ErrDatagramTooLarge
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if len(data) > MaxDatagram {
		return ErrDatagramTooLarge
	}
	r := bytes.NewReader(data)
	if _, err := xdr.Unmarshal(r, v); err != nil {
		return err
	}
	if r.Len() != 0 {
		return ErrTrailingData
	}
	return nil
}
