package distributed

import (
	"go.trai.ch/rig/internal/core/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

func publishRequest(runID domain.RunID, events []domain.BuildSlaveEvent) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRunID:  structpb.NewStringValue(runID.String()),
		fieldEvents: structpb.NewListValue(eventsToList(events)),
	}}
}

func parsePublishRequest(s *structpb.Struct) (domain.RunID, []domain.BuildSlaveEvent, error) {
	fields := s.GetFields()
	runID := fields[fieldRunID].GetStringValue()
	if runID == "" {
		return "", nil, malformed(fieldRunID)
	}
	list := fields[fieldEvents].GetListValue()
	if list == nil {
		return "", nil, malformed(fieldEvents)
	}
	events, err := eventsFromList(list)
	if err != nil {
		return "", nil, err
	}
	return domain.RunID(runID), events, nil
}

func publishResponse(seqs []int64) *structpb.Struct {
	values := make([]*structpb.Value, len(seqs))
	for i, n := range seqs {
		values[i] = seqValue(n)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldSequences: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func parsePublishResponse(s *structpb.Struct) ([]int64, error) {
	list := s.GetFields()[fieldSequences].GetListValue()
	if list == nil {
		return nil, malformed(fieldSequences)
	}
	seqs := make([]int64, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		n, err := parseSeq(fieldSequences, v)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, n)
	}
	return seqs, nil
}

func openRunResponse(runID domain.RunID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldRunID: structpb.NewStringValue(runID.String()),
	}}
}

func parseOpenRunResponse(s *structpb.Struct) (domain.RunID, error) {
	runID := s.GetFields()[fieldRunID].GetStringValue()
	if runID == "" {
		return "", malformed(fieldRunID)
	}
	return domain.RunID(runID), nil
}
