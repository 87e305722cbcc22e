package daemon

import (
	"errors"
	"strconv"
	"time"

	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/rig/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMalformedMessage is returned when a daemon message has a field of the wrong shape.
var ErrMalformedMessage = zerr.New("malformed daemon message")

const (
	fieldCwd      = "cwd"
	fieldTargets  = "targets"
	fieldNoCache  = "no_cache"
	fieldKeysOnly = "keys_only"
	fieldRunID    = "run_id"

	fieldRules     = "rules"
	fieldTarget    = "target"
	fieldStatus    = "status"
	fieldOutcome   = "outcome"
	fieldKey       = "key"
	fieldError     = "error"
	fieldDuration  = "duration"
	fieldArtifacts = "artifacts"
	fieldFailed    = "failed"
	fieldSkipped   = "skipped"
	fieldHits      = "hits"
	fieldBuilt     = "built"
	fieldBuildFail = "build_failed"

	fieldRunning       = "running"
	fieldPID           = "pid"
	fieldUptime        = "uptime"
	fieldLastActivity  = "last_activity"
	fieldIdleRemaining = "idle_remaining"
	fieldGraphHits     = "graph_cache_hits"
	fieldGraphMisses   = "graph_cache_misses"
)

func buildRequestToStruct(req ports.BuildRequest) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldCwd:      structpb.NewStringValue(req.Cwd),
		fieldTargets:  stringList(req.Targets),
		fieldNoCache:  structpb.NewBoolValue(req.NoCache),
		fieldKeysOnly: structpb.NewBoolValue(req.KeysOnly),
		fieldRunID:    structpb.NewStringValue(req.RunID.String()),
	}}
}

func buildRequestFromStruct(s *structpb.Struct) (ports.BuildRequest, error) {
	fields := s.GetFields()
	req := ports.BuildRequest{
		Cwd:      fields[fieldCwd].GetStringValue(),
		NoCache:  fields[fieldNoCache].GetBoolValue(),
		KeysOnly: fields[fieldKeysOnly].GetBoolValue(),
		RunID:    domain.RunID(fields[fieldRunID].GetStringValue()),
	}
	if req.Cwd == "" {
		return req, malformed(fieldCwd)
	}
	targets, err := parseStringList(fieldTargets, fields[fieldTargets])
	if err != nil {
		return req, err
	}
	req.Targets = targets
	return req, nil
}

func buildResultToStruct(r *domain.BuildResult, failed bool) *structpb.Struct {
	rules := make([]*structpb.Value, len(r.Rules))
	for i, rr := range r.Rules {
		rules[i] = structpb.NewStructValue(ruleResultToStruct(rr))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRules:     structpb.NewListValue(&structpb.ListValue{Values: rules}),
		fieldFailed:    targetList(r.Failed),
		fieldSkipped:   targetList(r.Skipped),
		fieldHits:      structpb.NewNumberValue(float64(r.Hits)),
		fieldBuilt:     structpb.NewNumberValue(float64(r.Built)),
		fieldBuildFail: structpb.NewBoolValue(failed),
	}}
}

func buildResultFromStruct(s *structpb.Struct) (*domain.BuildResult, bool, error) {
	fields := s.GetFields()
	r := &domain.BuildResult{
		Hits:  int(fields[fieldHits].GetNumberValue()),
		Built: int(fields[fieldBuilt].GetNumberValue()),
	}
	list := fields[fieldRules].GetListValue()
	if list == nil {
		return nil, false, malformed(fieldRules)
	}
	for _, v := range list.GetValues() {
		rr, err := ruleResultFromStruct(v.GetStructValue())
		if err != nil {
			return nil, false, err
		}
		r.Rules = append(r.Rules, rr)
	}
	var err error
	if r.Failed, err = parseTargetList(fieldFailed, fields[fieldFailed]); err != nil {
		return nil, false, err
	}
	if r.Skipped, err = parseTargetList(fieldSkipped, fields[fieldSkipped]); err != nil {
		return nil, false, err
	}
	return r, fields[fieldBuildFail].GetBoolValue(), nil
}

func ruleResultToStruct(rr domain.RuleResult) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldTarget:    structpb.NewStringValue(rr.Target.String()),
		fieldStatus:    structpb.NewStringValue(rr.Status.String()),
		fieldOutcome:   structpb.NewStringValue(rr.Outcome.String()),
		fieldDuration:  durationValue(rr.Duration),
		fieldArtifacts: stringList(rr.Artifacts),
	}
	if !rr.Key.IsZero() {
		fields[fieldKey] = structpb.NewStringValue(rr.Key.String())
	}
	if rr.Err != nil {
		fields[fieldError] = structpb.NewStringValue(rr.Err.Error())
	}
	return &structpb.Struct{Fields: fields}
}

func ruleResultFromStruct(s *structpb.Struct) (domain.RuleResult, error) {
	var rr domain.RuleResult
	if s == nil {
		return rr, malformed(fieldRules)
	}
	fields := s.GetFields()
	target, err := domain.ParseBuildTarget(fields[fieldTarget].GetStringValue())
	if err != nil {
		return rr, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", fieldTarget)
	}
	rr.Target = target
	if rr.Status, err = parseStatus(fields[fieldStatus].GetStringValue()); err != nil {
		return rr, err
	}
	if rr.Outcome, err = parseOutcome(fields[fieldOutcome].GetStringValue()); err != nil {
		return rr, err
	}
	if key := fields[fieldKey].GetStringValue(); key != "" {
		if rr.Key, err = domain.ParseRuleKey(key); err != nil {
			return rr, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", fieldKey)
		}
	}
	if msg := fields[fieldError].GetStringValue(); msg != "" {
		rr.Err = errors.New(msg)
	}
	if rr.Duration, err = parseDuration(fieldDuration, fields[fieldDuration]); err != nil {
		return rr, err
	}
	if rr.Artifacts, err = parseStringList(fieldArtifacts, fields[fieldArtifacts]); err != nil {
		return rr, err
	}
	return rr, nil
}

func statusToStruct(st *ports.DaemonStatus) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRunning:       structpb.NewBoolValue(st.Running),
		fieldPID:           structpb.NewNumberValue(float64(st.PID)),
		fieldUptime:        durationValue(st.Uptime),
		fieldLastActivity:  structpb.NewStringValue(st.LastActivity.UTC().Format(time.RFC3339Nano)),
		fieldIdleRemaining: durationValue(st.IdleRemaining),
		fieldGraphHits:     structpb.NewNumberValue(float64(st.GraphCacheHits)),
		fieldGraphMisses:   structpb.NewNumberValue(float64(st.GraphCacheMisses)),
	}}
}

func statusFromStruct(s *structpb.Struct) (*ports.DaemonStatus, error) {
	fields := s.GetFields()
	st := &ports.DaemonStatus{
		Running:          fields[fieldRunning].GetBoolValue(),
		PID:              int(fields[fieldPID].GetNumberValue()),
		GraphCacheHits:   int64(fields[fieldGraphHits].GetNumberValue()),
		GraphCacheMisses: int64(fields[fieldGraphMisses].GetNumberValue()),
	}
	var err error
	if st.Uptime, err = parseDuration(fieldUptime, fields[fieldUptime]); err != nil {
		return nil, err
	}
	if st.IdleRemaining, err = parseDuration(fieldIdleRemaining, fields[fieldIdleRemaining]); err != nil {
		return nil, err
	}
	if ts := fields[fieldLastActivity].GetStringValue(); ts != "" {
		if st.LastActivity, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", fieldLastActivity)
		}
	}
	return st, nil
}

func parseStatus(s string) (domain.RuleStatus, error) {
	for st := domain.StatusPending; st <= domain.StatusSkipped; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, zerr.With(malformed(fieldStatus), "value", s)
}

func parseOutcome(s string) (domain.RuleOutcome, error) {
	for o := domain.OutcomeNone; o <= domain.OutcomeKeyOnly; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, zerr.With(malformed(fieldOutcome), "value", s)
}

// Durations travel as decimal nanosecond strings because structpb numbers are doubles.
func durationValue(d time.Duration) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatInt(int64(d), 10))
}

func parseDuration(name string, v *structpb.Value) (time.Duration, error) {
	if v == nil {
		return 0, nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return 0, malformed(name)
	}
	n, err := strconv.ParseInt(str.StringValue, 10, 64)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", name)
	}
	return time.Duration(n), nil
}

func stringList(values []string) *structpb.Value {
	list := make([]*structpb.Value, len(values))
	for i, v := range values {
		list[i] = structpb.NewStringValue(v)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: list})
}

func parseStringList(name string, v *structpb.Value) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, malformed(name)
	}
	var out []string
	for _, item := range list.GetValues() {
		str, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, malformed(name)
		}
		out = append(out, str.StringValue)
	}
	return out, nil
}

func targetList(targets []domain.BuildTarget) *structpb.Value {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.String()
	}
	return stringList(names)
}

func parseTargetList(name string, v *structpb.Value) ([]domain.BuildTarget, error) {
	names, err := parseStringList(name, v)
	if err != nil {
		return nil, err
	}
	var targets []domain.BuildTarget
	for _, n := range names {
		t, err := domain.ParseBuildTarget(n)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, ErrMalformedMessage.Error()), "field", name)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func malformed(field string) error {
	return zerr.With(ErrMalformedMessage, "field", field)
}
