// Package ipc implements the line protocol spoken between the server and the
// privileged worker: one JSON object per line, one response per request,
// strictly in order.
//
//	-> {"action":"authenticate","username":"alice","password":"..."}
//	<- {"result":true}
//	-> {"action":"stop"}
//
// Decoding is strict. Unknown fields, unknown actions, missing fields,
// trailing data and over-long lines are all ErrMalformed, after which the
// stream must be considered desynchronized.
package ipc

import (
	"errors"
	"log/slog"
)

const (
	ActionAuthenticate = "authenticate"
	ActionStop         = "stop"
)

// MaxLineSize bounds a single encoded message, newline included.
const MaxLineSize = 64 * 1024

var (
	ErrMalformed = errors.New("malformed ipc message")
	// ErrTooLong is returned by the encoder before anything is written, so
	// the stream stays usable.
	ErrTooLong = errors.New("ipc message exceeds line limit")
)

type Request struct {
	Action   string
	Username string
	Password string
}

func Authenticate(username, password string) Request {
	return Request{Action: ActionAuthenticate, Username: username, Password: password}
}

func Stop() Request {
	return Request{Action: ActionStop}
}

// LogValue keeps the password out of log records.
func (r Request) LogValue() slog.Value {
	if r.Action != ActionAuthenticate {
		return slog.GroupValue(slog.String("action", r.Action))
	}
	return slog.GroupValue(slog.String("action", r.Action), slog.String("username", r.Username))
}

func (r Request) String() string {
	if r.Action != ActionAuthenticate {
		return r.Action
	}
	return r.Action + "(" + r.Username + ")"
}

type Response struct {
	Result bool
}

type wireRequest struct {
	Action   *string `json:"action"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
}

type wireResponse struct {
	Result *bool `json:"result"`
}

func (r Request) wire() (wireRequest, error) {
	switch r.Action {
	case ActionAuthenticate:
		return wireRequest{Action: &r.Action, Username: &r.Username, Password: &r.Password}, nil
	case ActionStop:
		return wireRequest{Action: &r.Action}, nil
	default:
		return wireRequest{}, errors.New("ipc: unknown action " + r.Action)
	}
}

func (w wireRequest) request() (Request, error) {
	if w.Action == nil {
		return Request{}, errors.New("missing action")
	}
	switch *w.Action {
	case ActionAuthenticate:
		if w.Username == nil || w.Password == nil {
			return Request{}, errors.New("authenticate needs username and password")
		}
		return Authenticate(*w.Username, *w.Password), nil
	case ActionStop:
		if w.Username != nil || w.Password != nil {
			return Request{}, errors.New("stop takes no arguments")
		}
		return Stop(), nil
	default:
		return Request{}, errors.New("unknown action " + *w.Action)
	}
}
