package distributed

import (
	"strconv"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedMessage is returned when a wire struct has a field of the wrong shape.
var ErrMalformedMessage = zerr.New("malformed wire message")

// Field names of the wire messages.
const (
	fieldSuccess      = "success"
	fieldErrorMessage = "error_message"
	fieldQuery        = "query"
	fieldEvents       = "events"

	fieldRunID     = "run_id"
	fieldFirst     = "first"
	fieldLast      = "last"
	fieldSeq       = "seq"
	fieldTimestamp = "timestamp"
	fieldSlaveID   = "slave_id"
	fieldType      = "type"
	fieldPayload   = "payload"
	fieldSequences = "sequences"
)

// WireQuery is the serialized form of domain.EventsQuery.
type WireQuery struct {
	RunID string
	First *int64
	Last  *int64
}

// WireEventsRange is the serialized form of domain.EventsRange. Every field is
// optional on the wire, so a decoded value has to pass Validate before it becomes
// a domain range.
type WireEventsRange struct {
	Success      *bool
	ErrorMessage *string
	Query        *WireQuery
	Events       []domain.BuildSlaveEvent
	HasEvents    bool
}

// EncodeRange converts a domain range to its wire form.
func EncodeRange(r domain.EventsRange) WireEventsRange {
	ok := r.Succeeded()
	q := encodeQuery(r.Query())
	w := WireEventsRange{Success: &ok, Query: &q}
	if ok {
		w.Events = r.Events()
		w.HasEvents = true
		return w
	}
	msg := r.ErrorMessage()
	w.ErrorMessage = &msg
	return w
}

// Validate rejects combinations that are neither a result nor an error.
func (w WireEventsRange) Validate() error {
	switch {
	case w.Success == nil:
		return zerr.Wrap(domain.ErrInvalidEventsRange, "success is not set")
	case w.Query == nil:
		return zerr.Wrap(domain.ErrInvalidEventsRange, "query is not set")
	case *w.Success && w.ErrorMessage != nil:
		return zerr.Wrap(domain.ErrInvalidEventsRange, "successful range carries an error message")
	case *w.Success && !w.HasEvents:
		return zerr.Wrap(domain.ErrInvalidEventsRange, "successful range carries no events")
	case !*w.Success && w.HasEvents:
		return zerr.Wrap(domain.ErrInvalidEventsRange, "failed range carries events")
	case !*w.Success && (w.ErrorMessage == nil || *w.ErrorMessage == ""):
		return zerr.Wrap(domain.ErrInvalidEventsRange, "failed range carries no error message")
	}
	return nil
}

// Decode validates w and converts it to a domain range.
func (w WireEventsRange) Decode() (domain.EventsRange, error) {
	if err := w.Validate(); err != nil {
		return domain.EventsRange{}, err
	}
	q := w.Query.decode()
	if *w.Success {
		return domain.RangeSucceeded(q, w.Events), nil
	}
	return domain.RangeFailed(q, *w.ErrorMessage), nil
}

// ToStruct serializes w. Absent fields are left out of the struct.
func (w WireEventsRange) ToStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{}
	if w.Success != nil {
		fields[fieldSuccess] = structpb.NewBoolValue(*w.Success)
	}
	if w.ErrorMessage != nil {
		fields[fieldErrorMessage] = structpb.NewStringValue(*w.ErrorMessage)
	}
	if w.Query != nil {
		fields[fieldQuery] = structpb.NewStructValue(w.Query.toStruct())
	}
	if w.HasEvents {
		fields[fieldEvents] = structpb.NewListValue(eventsToList(w.Events))
	}
	return &structpb.Struct{Fields: fields}
}

// RangeFromStruct parses the wire struct of a range. It does not validate the
// combination of fields.
func RangeFromStruct(s *structpb.Struct) (WireEventsRange, error) {
	var w WireEventsRange
	fields := s.GetFields()
	if v, ok := fields[fieldSuccess]; ok {
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return w, malformed(fieldSuccess)
		}
		w.Success = &b.BoolValue
	}
	if v, ok := fields[fieldErrorMessage]; ok {
		str, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return w, malformed(fieldErrorMessage)
		}
		w.ErrorMessage = &str.StringValue
	}
	if v, ok := fields[fieldQuery]; ok {
		q, err := queryFromStruct(v.GetStructValue())
		if err != nil {
			return w, err
		}
		w.Query = &q
	}
	if v, ok := fields[fieldEvents]; ok {
		list := v.GetListValue()
		if list == nil {
			return w, malformed(fieldEvents)
		}
		events, err := eventsFromList(list)
		if err != nil {
			return w, err
		}
		w.Events = events
		w.HasEvents = true
	}
	return w, nil
}

func encodeQuery(q domain.EventsQuery) WireQuery {
	return WireQuery{RunID: q.RunID.String(), First: q.First, Last: q.Last}
}

func (q WireQuery) decode() domain.EventsQuery {
	return domain.EventsQuery{RunID: domain.RunID(q.RunID), First: q.First, Last: q.Last}
}

func (q WireQuery) toStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldRunID: structpb.NewStringValue(q.RunID),
	}
	if q.First != nil {
		fields[fieldFirst] = seqValue(*q.First)
	}
	if q.Last != nil {
		fields[fieldLast] = seqValue(*q.Last)
	}
	return &structpb.Struct{Fields: fields}
}

func queryFromStruct(s *structpb.Struct) (WireQuery, error) {
	var q WireQuery
	if s == nil {
		return q, malformed(fieldQuery)
	}
	fields := s.GetFields()
	q.RunID = fields[fieldRunID].GetStringValue()
	if q.RunID == "" {
		return q, malformed(fieldRunID)
	}
	for name, dst := range map[string]**int64{fieldFirst: &q.First, fieldLast: &q.Last} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		n, err := parseSeq(name, v)
		if err != nil {
			return q, err
		}
		*dst = &n
	}
	return q, nil
}

// Sequences travel as decimal strings because structpb numbers are doubles.
func seqValue(n int64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatInt(n, 10))
}

func parseSeq(name string, v *structpb.Value) (int64, error) {
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return 0, malformed(name)
	}
	n, err := strconv.ParseInt(str.StringValue, 10, 64)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", name)
	}
	return n, nil
}

func eventToStruct(e domain.BuildSlaveEvent) *structpb.Struct {
	payload := make(map[string]*structpb.Value, len(e.Payload))
	for k, v := range e.Payload {
		payload[k] = structpb.NewStringValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRunID:     structpb.NewStringValue(e.RunID.String()),
		fieldSeq:       seqValue(e.Seq),
		fieldTimestamp: structpb.NewStringValue(e.Timestamp.UTC().Format(time.RFC3339Nano)),
		fieldSlaveID:   structpb.NewStringValue(e.SlaveID),
		fieldType:      structpb.NewStringValue(string(e.Type)),
		fieldPayload:   structpb.NewStructValue(&structpb.Struct{Fields: payload}),
	}}
}

func eventFromStruct(s *structpb.Struct) (domain.BuildSlaveEvent, error) {
	var e domain.BuildSlaveEvent
	if s == nil {
		return e, malformed(fieldEvents)
	}
	fields := s.GetFields()
	e.RunID = domain.RunID(fields[fieldRunID].GetStringValue())
	e.SlaveID = fields[fieldSlaveID].GetStringValue()
	e.Type = domain.EventType(fields[fieldType].GetStringValue())
	if v, ok := fields[fieldSeq]; ok {
		n, err := parseSeq(fieldSeq, v)
		if err != nil {
			return e, err
		}
		e.Seq = n
	}
	if ts := fields[fieldTimestamp].GetStringValue(); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return e, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", fieldTimestamp)
		}
		e.Timestamp = parsed
	}
	if p := fields[fieldPayload].GetStructValue(); p != nil && len(p.GetFields()) > 0 {
		e.Payload = make(map[string]string, len(p.GetFields()))
		for k, v := range p.GetFields() {
			e.Payload[k] = v.GetStringValue()
		}
	}
	return e, nil
}

func eventsToList(events []domain.BuildSlaveEvent) *structpb.ListValue {
	values := make([]*structpb.Value, len(events))
	for i, e := range events {
		values[i] = structpb.NewStructValue(eventToStruct(e))
	}
	return &structpb.ListValue{Values: values}
}

func eventsFromList(list *structpb.ListValue) ([]domain.BuildSlaveEvent, error) {
	events := make([]domain.BuildSlaveEvent, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		e, err := eventFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func malformed(field string) error {
	return zerr.With(ErrMalformedMessage, "field", field)
}
