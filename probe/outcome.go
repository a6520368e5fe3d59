// Package probe contains the core of the diagnostic bridge: picking a target
// page, holding an evaluation session on it and classifying evaluation
// replies.
package probe

import (
	"encoding/json"
	"unicode/utf8"

	cdpruntime "github.com/chromedp/cdproto/runtime"
)

// ExceptionDetailLimit bounds the size of the structured exception payload
// attached to an Exception outcome, so a huge thrown object cannot produce
// unbounded output.
const ExceptionDetailLimit = 4000

// OutcomeKind tags the three shapes an evaluation can produce.
type OutcomeKind int

const (
	// KindValue is a directly representable, JSON-compatible result.
	KindValue OutcomeKind = iota
	// KindUnserializable is a result that cannot be converted to plain data
	// (functions, host objects, circular structures); only the remote-object
	// metadata is available.
	KindUnserializable
	// KindException means the evaluated expression threw or rejected.
	KindException
)

func (k OutcomeKind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindUnserializable:
		return "unserializable"
	case KindException:
		return "exception"
	}
	return "unknown"
}

// RemoteRef is the descriptive metadata of a remote object that could not be
// returned by value.
type RemoteRef struct {
	Type                string `json:"type"`
	Subtype             string `json:"subtype,omitempty"`
	ClassName           string `json:"className,omitempty"`
	Description         string `json:"description,omitempty"`
	ObjectID            string `json:"objectId,omitempty"`
	UnserializableValue string `json:"unserializableValue,omitempty"`
}

// Exception reports an expression that threw or rejected. Text is the
// protocol-provided human-readable message; Detail is the thrown object as
// indented JSON, truncated to ExceptionDetailLimit.
type Exception struct {
	Text   string
	Detail string
}

// Outcome is the classified result of one evaluation. Exactly one of Value,
// Remote and Exception is meaningful, per Kind.
type Outcome struct {
	Kind      OutcomeKind
	Value     interface{}
	Remote    *RemoteRef
	Exception *Exception
}

// Classify maps a raw Runtime.evaluate reply into an Outcome. The branch
// order is contract: exception detection takes precedence over value and
// unserializable detection, even when the reply nominally carries both.
func Classify(result *cdpruntime.RemoteObject, exc *cdpruntime.ExceptionDetails) Outcome {
	if exc != nil {
		return Outcome{Kind: KindException, Exception: newException(exc)}
	}
	if result != nil && len(result.Value) > 0 {
		var v interface{}
		if err := json.Unmarshal(result.Value, &v); err == nil {
			return Outcome{Kind: KindValue, Value: v}
		}
		// A value we cannot decode is reported as a reference below.
	}
	return Outcome{Kind: KindUnserializable, Remote: newRemoteRef(result)}
}

func newException(exc *cdpruntime.ExceptionDetails) *Exception {
	text := exc.Text
	if text == "" {
		text = "JavaScript exception"
	}
	var detail string
	if exc.Exception != nil {
		if buf, err := json.MarshalIndent(exc.Exception, "", "  "); err == nil {
			detail = truncate(string(buf), ExceptionDetailLimit)
		}
	}
	return &Exception{Text: text, Detail: detail}
}

func newRemoteRef(obj *cdpruntime.RemoteObject) *RemoteRef {
	if obj == nil {
		return &RemoteRef{}
	}
	return &RemoteRef{
		Type:                string(obj.Type),
		Subtype:             string(obj.Subtype),
		ClassName:           obj.ClassName,
		Description:         obj.Description,
		ObjectID:            string(obj.ObjectID),
		UnserializableValue: string(obj.UnserializableValue),
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never produces invalid UTF-8.
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
