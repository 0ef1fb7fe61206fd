package graph

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	projectImportCypher = `
		MERGE (op:ImportOperation {id: $operation_id, user_id: $user_id})
		WITH op
		UNWIND $lead_ids AS lead_id
		MERGE (l:Lead {id: lead_id, user_id: $user_id})
		MERGE (op)-[:CREATED]->(l)
	`

	projectMergeCypher = `
		MERGE (m:Lead {id: $master_id, user_id: $user_id})
		WITH m
		UNWIND $merged_ids AS merged_id
		MERGE (l:Lead {id: merged_id, user_id: $user_id})
		MERGE (l)-[:MERGED_INTO]->(m)
	`

	removeImportCypher = `
		MATCH (op:ImportOperation {id: $operation_id, user_id: $user_id})
		OPTIONAL MATCH (op)-[:CREATED]->(l:Lead)
		WHERE l.id IN $lead_ids
		DETACH DELETE l
		SET op.reverted = true
	`

	mergeHistoryCypher = `
		MATCH (l:Lead {user_id: $user_id})-[:MERGED_INTO*1..]->(m:Lead {id: $lead_id, user_id: $user_id})
		RETURN l.id AS id
	`
)

// LineageService projects imports and merges as a graph:
// (:ImportOperation)-[:CREATED]->(:Lead) and (:Lead)-[:MERGED_INTO]->(:Lead).
type LineageService struct {
	client *Client
	logger ectologger.Logger
}

func NewLineageService(client *Client, logger ectologger.Logger) *LineageService {
	return &LineageService{
		client: client,
		logger: logger,
	}
}

// ProjectImport links the leads an import created to its operation node.
func (s *LineageService) ProjectImport(ctx context.Context, userID, operationID string, leadIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.ProjectImport")
	defer span.End()

	if operationID == "" || len(leadIDs) == 0 {
		return nil
	}
	return s.write(ctx, projectImportCypher, map[string]any{
		"operation_id": operationID,
		"user_id":      userID,
		"lead_ids":     leadIDs,
	})
}

// ProjectMerge records that mergedIDs were folded into masterID.
func (s *LineageService) ProjectMerge(ctx context.Context, userID, masterID string, mergedIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.ProjectMerge")
	defer span.End()

	if len(mergedIDs) == 0 {
		return nil
	}
	return s.write(ctx, projectMergeCypher, map[string]any{
		"master_id":  masterID,
		"user_id":    userID,
		"merged_ids": mergedIDs,
	})
}

// RemoveImport drops the lead nodes an undo deleted and marks the operation reverted.
func (s *LineageService) RemoveImport(ctx context.Context, userID, operationID string, deletedIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.RemoveImport")
	defer span.End()

	return s.write(ctx, removeImportCypher, map[string]any{
		"operation_id": operationID,
		"user_id":      userID,
		"lead_ids":     deletedIDs,
	})
}

// MergeHistory returns the ids of every lead that was merged, directly or
// transitively, into leadID.
func (s *LineageService) MergeHistory(ctx context.Context, userID, leadID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.MergeHistory")
	defer span.End()

	records, err := s.client.Read(ctx, mergeHistoryCypher, map[string]any{
		"lead_id": leadID,
		"user_id": userID,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		id, _, err := neo4j.GetRecordValue[string](record, "id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *LineageService) write(ctx context.Context, cypher string, params map[string]any) error {
	counters, err := s.client.Write(ctx, cypher, params)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("lineage write failed")
		return err
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"nodes_created":         counters.NodesCreated(),
		"nodes_deleted":         counters.NodesDeleted(),
		"relationships_created": counters.RelationshipsCreated(),
	}).Debug("lineage written")
	return nil
}
