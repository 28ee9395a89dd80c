package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Record Kinds
// --------------------------------------------------------------------------

// Kind names one of the three persisted record collections.
type Kind string

const (
	KindObject  Kind = "object"
	KindMessage Kind = "message"
	KindPhantom Kind = "phantom"
)

// Kinds lists every record kind in snapshot order.
var Kinds = []Kind{KindObject, KindMessage, KindPhantom}

// Object is the position and rotation of a single game object.
type Object struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Type      int    `json:"type"`
	Position  string `json:"position"`
	Rotation  string `json:"rotation"`
}

// Message is a short integer-coded message anchored at a position.
type Message struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Position  string `json:"position"`
	Part1     int    `json:"part1"`
	Part2     int    `json:"part2"`
	Part3     int    `json:"part3"`
}

// Phantom is a batch of trail samples. Data keeps the order in which the
// client recorded the samples.
type Phantom struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Data      []Pair `json:"data"`
}

// Pair is one trail sample, usually a serialized position and rotation.
type Pair [2]string

// UnmarshalJSON rejects arrays that do not hold exactly two strings.
// encoding/json would otherwise silently drop or zero-fill elements.
func (p *Pair) UnmarshalJSON(b []byte) error {
	var parts []string
	if err := json.Unmarshal(b, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("expected a pair of 2 strings, got %d", len(parts))
	}
	p[0], p[1] = parts[0], parts[1]
	return nil
}

// --------------------------------------------------------------------------
// Vectors
// --------------------------------------------------------------------------

// Vector is a decoded "x,y,z" field.
type Vector [3]float64

// ParseVector decodes a comma separated triple of finite numbers.
// Whitespace around components is ignored.
func ParseVector(s string) (Vector, error) {
	var v Vector
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("must have exactly 3 comma separated components, got %d", len(parts))
	}
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return v, fmt.Errorf("component %d (%q) is not a number", i, part)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v, fmt.Errorf("component %d (%q) is not finite", i, part)
		}
		v[i] = f
	}
	return v, nil
}

// String formats the vector the way clients send it.
func (v Vector) String() string {
	return strconv.FormatFloat(v[0], 'f', 2, 64) + "," +
		strconv.FormatFloat(v[1], 'f', 2, 64) + "," +
		strconv.FormatFloat(v[2], 'f', 2, 64)
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// Validate checks the client supplied fields. ID is assigned by the store
// and ignored.
func (o *Object) Validate(loc ...string) ValidationErrors {
	var errs ValidationErrors
	errs.checkSession(o.SessionID, loc)
	errs.checkVector(o.Position, at(loc, "position"))
	errs.checkVector(o.Rotation, at(loc, "rotation"))
	return errs
}

// Validate checks the client supplied fields.
func (m *Message) Validate(loc ...string) ValidationErrors {
	var errs ValidationErrors
	errs.checkSession(m.SessionID, loc)
	errs.checkVector(m.Position, at(loc, "position"))
	return errs
}

// Validate checks the client supplied fields. An empty trail is allowed,
// a missing one is not.
func (p *Phantom) Validate(loc ...string) ValidationErrors {
	var errs ValidationErrors
	errs.checkSession(p.SessionID, loc)
	if p.Data == nil {
		errs.Add(at(loc, "data"), "field required")
	}
	return errs
}

func (errs *ValidationErrors) checkSession(id string, loc []string) {
	if id == "" {
		errs.Add(at(loc, "session_id"), "field required")
		return
	}
	if !isCanonicalUUID(id) {
		errs.Add(at(loc, "session_id"), "value is not a valid uuid")
	}
}

// isCanonicalUUID accepts only the hyphenated 36 character form. Session ids
// are stored as sent, so urn:uuid:, braced and unhyphenated variants of one
// session must not get in.
func isCanonicalUUID(id string) bool {
	if len(id) != 36 || id[8] != '-' || id[13] != '-' || id[18] != '-' || id[23] != '-' {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (errs *ValidationErrors) checkVector(s string, loc []string) {
	if s == "" {
		errs.Add(loc, "field required")
		return
	}
	if _, err := ParseVector(s); err != nil {
		errs.Add(loc, err.Error())
	}
}

func at(loc []string, field string) []string {
	out := make([]string, 0, len(loc)+1)
	out = append(out, loc...)
	return append(out, field)
}
