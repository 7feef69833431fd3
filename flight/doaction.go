package flight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/catalog"
)

// Action types served by DoAction.
const (
	// ActionExplain plans a QueryRequest without running it.
	ActionExplain = "explain"
	// ActionListIndexes lists the indexes declared by a collection.
	ActionListIndexes = "list_indexes"
)

// ExplainResult is the JSON body returned by the explain action.
type ExplainResult struct {
	Query    string        `json:"query"`
	Leaves   []string      `json:"leaves"`
	Terms    []ExplainTerm `json:"terms"`
	FullScan bool          `json:"full_scan"`
}

// ExplainTerm describes the access path of one disjunctive term.
type ExplainTerm struct {
	Term       string `json:"term"`
	Index      string `json:"index,omitempty"`
	IdealIndex string `json:"ideal_index"`
}

var actionTypes = []*flight.ActionType{
	{Type: ActionExplain, Description: "Validate and plan a JSON query request"},
	{Type: ActionListIndexes, Description: "List the indexes of a collection; body is {\"schema\":..., \"collection\":...}"},
}

// ListActions advertises the supported actions.
func (s *Server) ListActions(_ *flight.Empty, stream flight.FlightService_ListActionsServer) error {
	for _, at := range actionTypes {
		if err := stream.Send(at); err != nil {
			return err
		}
	}
	return nil
}

// DoAction executes server actions.
func (s *Server) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	ctx := EnrichContextMetadata(stream.Context())

	s.logger.Debug("DoAction called",
		"type", action.GetType(),
		"body_size", len(action.GetBody()),
	)

	switch action.GetType() {
	case ActionExplain:
		return s.handleExplain(ctx, action, stream)
	case ActionListIndexes:
		return s.handleListIndexes(ctx, action, stream)
	default:
		return status.Errorf(codes.Unimplemented, "unknown action type: %s", action.GetType())
	}
}

func (s *Server) handleExplain(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	req, err := ParseQueryRequest(action.GetBody())
	if err != nil {
		return toStatus(err)
	}
	coll, err := s.lookupCollection(ctx, req.Schema, req.Collection)
	if err != nil {
		return err
	}
	q, err := req.Query()
	if err != nil {
		return toStatus(err)
	}

	plan := s.plan(coll, q)
	result := ExplainResult{
		Query:    q.String(),
		FullScan: plan.FullScan(),
	}
	for _, leaf := range q.Filter().FlattenedFilters() {
		result.Leaves = append(result.Leaves, leaf.String())
	}
	for _, t := range plan.Terms {
		term := ExplainTerm{Term: t.Term.String(), IdealIndex: t.Ideal.String()}
		if t.Index != nil {
			term.Index = t.Index.String()
		}
		result.Terms = append(result.Terms, term)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return status.Errorf(codes.Internal, "failed to encode plan: %v", err)
	}
	return stream.Send(&flight.Result{Body: body})
}

func (s *Server) handleListIndexes(ctx context.Context, action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var params struct {
		Schema     string `json:"schema"`
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal(action.GetBody(), &params); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid parameters: %v", err)
	}

	coll, err := s.lookupCollection(ctx, params.Schema, params.Collection)
	if err != nil {
		return err
	}
	indexed, ok := coll.(catalog.IndexedCollection)
	if !ok {
		return nil
	}
	for _, idx := range indexed.Indexes() {
		if err := stream.Send(&flight.Result{Body: []byte(idx.String())}); err != nil {
			return fmt.Errorf("send index: %w", err)
		}
	}
	return nil
}

// ParseExplainResult decodes the body of an explain action result.
func ParseExplainResult(body []byte) (*ExplainResult, error) {
	var r ExplainResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
