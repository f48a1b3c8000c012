// Package streamhello is the preface every attachment yamux stream starts
// with: a length-prefixed JSON {kind, v} header identifying what the stream
// carries (avatar, file, image, voice) before any payload bytes.
package streamhello

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/chatv2/chatv2-server/framing/jsonframe"
)

var ErrBadStreamHello = errors.New("bad stream hello")

// Hello is the preface payload. V is a format version, bumped only if the
// preface shape itself changes.
type Hello struct {
	Kind string `json:"kind"`
	V    int    `json:"v"`
}

// WriteStreamHello sends the stream-kind preface.
func WriteStreamHello(w io.Writer, kind string) error {
	return jsonframe.WriteJSONFrame(w, Hello{Kind: kind, V: 1})
}

// ReadStreamHello reads and validates the stream-kind preface.
func ReadStreamHello(r io.Reader, maxLen int) (Hello, error) {
	b, err := jsonframe.ReadJSONFrame(r, maxLen)
	if err != nil {
		return Hello{}, err
	}
	var h Hello
	if err := json.Unmarshal(b, &h); err != nil {
		return Hello{}, ErrBadStreamHello
	}
	if h.V != 1 || h.Kind == "" {
		return Hello{}, ErrBadStreamHello
	}
	return h, nil
}
