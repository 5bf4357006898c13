package at

import (
	"fmt"
	"strconv"
	"strings"
)

const CRLF = "\r\n"

// ResponseKind classifies what the AG sends back.
type ResponseKind int

const (
	KindOk ResponseKind = iota
	KindError
	KindCmeError
	KindResult
	KindRaw
)

// Response is one AG -> HF message.
type Response struct {
	Kind ResponseKind
	// Name of a result (e.g. "+BRSF") for KindResult.
	Name string
	Args []string
	// Code for KindCmeError.
	Code int
	// Text for KindRaw, sent between CRLFs as is.
	Text string
}

func Ok() Response {
	return Response{Kind: KindOk}
}

func Error() Response {
	return Response{Kind: KindError}
}

func CmeError(code int) Response {
	return Response{Kind: KindCmeError, Code: code}
}

func Result(name string, args ...string) Response {
	return Response{Kind: KindResult, Name: name, Args: args}
}

func Raw(text string) Response {
	return Response{Kind: KindRaw, Text: text}
}

// IsFinal reports whether r is a final result code.
func (r Response) IsFinal() bool {
	return r.Kind == KindOk || r.Kind == KindError || r.Kind == KindCmeError
}

// Line renders r without the surrounding CRLFs.
func (r Response) Line() (string, error) {
	switch r.Kind {
	case KindOk:
		return "OK", nil
	case KindError:
		return "ERROR", nil
	case KindCmeError:
		return "+CME ERROR: " + strconv.Itoa(r.Code), nil
	case KindResult:
		if !strings.HasPrefix(r.Name, "+") || len(r.Name) < 2 {
			return "", fmt.Errorf("%w: result name %q", ErrInvalidResult, r.Name)
		}
		if len(r.Args) == 0 {
			return r.Name, nil
		}
		return r.Name + ": " + strings.Join(r.Args, ","), nil
	case KindRaw:
		if strings.ContainsAny(r.Text, "\r\n") {
			return "", fmt.Errorf("%w: raw text contains line break", ErrInvalidResult)
		}
		return r.Text, nil
	default:
		return "", fmt.Errorf("%w: kind %d", ErrInvalidResult, r.Kind)
	}
}

// Encode renders r with the CRLF framing the HF expects.
func (r Response) Encode() ([]byte, error) {
	line, err := r.Line()
	if err != nil {
		return nil, err
	}
	return []byte(CRLF + line + CRLF), nil
}

func (r Response) String() string {
	line, err := r.Line()
	if err != nil {
		return "<invalid>"
	}
	return line
}

// Quote wraps s in double quotes for string result arguments.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
