package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/questline/core/internal/models"
	"go.uber.org/zap"
)

// Key addresses one item.
type Key struct {
	PK string
	SK string
}

const batchDeleteChunk = 24

// BatchDelete removes the given keys in chunks, retrying unprocessed items.
func (s *Store) BatchDelete(ctx context.Context, keys []Key) error {
	for start := 0; start < len(keys); start += batchDeleteChunk {
		end := start + batchDeleteChunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := s.batchDeleteChunk(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) batchDeleteChunk(ctx context.Context, keys []Key) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyAttrs(key.PK, key.SK)},
		})
	}
	pending := map[string][]types.WriteRequest{s.table: requests}
	for len(pending[s.table]) > 0 {
		var out *dynamodb.BatchWriteItemOutput
		err := s.retry(ctx, func() error {
			resp, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
		if err != nil {
			return err
		}
		pending = out.UnprocessedItems
	}
	return nil
}

type keyOnly struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
}

// DeleteCascadeGoal removes a goal with everything hanging off it: tasks,
// the goal-side invite/collaborator/comment/reaction partition, and the
// mirrored invite inbox rows. The goal row is deleted last so a failure
// mid-sweep leaves stragglers reachable through the still-present goal; a
// final reaper pass collects anything a concurrent writer slipped in.
func (s *Store) DeleteCascadeGoal(ctx context.Context, userID, goalID string) error {
	userPK := models.UserPK(userID)
	goalPK := models.GoalPK(goalID)

	// Tasks under the owner partition.
	if err := s.deleteByPrefix(ctx, userPK, models.TaskSKPrefix(goalID)); err != nil {
		return err
	}

	// Mirrored inbox rows first, while the goal-side invites still
	// enumerate the invitees.
	invites, _, err := QueryPartition[models.Invite](ctx, s, goalPK, models.PrefixInvite, Page{Limit: MaxLimit})
	for err == nil && len(invites) > 0 {
		keys := make([]Key, 0, len(invites))
		for _, invite := range invites {
			keys = append(keys, Key{PK: models.UserPK(invite.InviteeID), SK: models.InviteInboxSK(goalID)})
			keys = append(keys, Key{PK: goalPK, SK: models.InviteSK(invite.InviteeID)})
		}
		if err := s.BatchDelete(ctx, keys); err != nil {
			return err
		}
		invites, _, err = QueryPartition[models.Invite](ctx, s, goalPK, models.PrefixInvite, Page{Limit: MaxLimit})
	}
	if err != nil {
		return err
	}

	// Everything else in the goal partition: collaborators, comments,
	// reactions.
	if err := s.deleteByPrefix(ctx, goalPK, ""); err != nil {
		return err
	}

	// Goal row last, so the entity stays discoverable until its children
	// are gone.
	if err := s.Delete(ctx, userPK, models.GoalSK(goalID)); err != nil {
		return err
	}

	// Reaper pass for stragglers written during the sweep.
	if err := s.deleteByPrefix(ctx, userPK, models.TaskSKPrefix(goalID)); err != nil {
		s.logger.Warn("goal cascade reaper failed",
			zap.String("goalId", goalID), zap.Error(err))
		return err
	}
	return nil
}

// DeleteCascadeGuild removes a guild partition: members, join requests,
// blocks, comments, reactions, then the metadata row last.
func (s *Store) DeleteCascadeGuild(ctx context.Context, guildID string) error {
	guildPK := models.GuildPK(guildID)
	for _, prefix := range []string{
		models.PrefixMember,
		models.PrefixJoinRequest,
		models.PrefixBlocked,
		models.PrefixComment,
		models.PrefixReaction,
	} {
		if err := s.deleteByPrefix(ctx, guildPK, prefix); err != nil {
			return err
		}
	}
	return s.Delete(ctx, guildPK, models.GuildMetaSK(guildID))
}

func (s *Store) deleteByPrefix(ctx context.Context, pk, skPrefix string) error {
	for {
		items, _, err := s.queryKeys(ctx, pk, skPrefix)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		keys := make([]Key, 0, len(items))
		for _, item := range items {
			keys = append(keys, Key{PK: item.PK, SK: item.SK})
		}
		if err := s.BatchDelete(ctx, keys); err != nil {
			return err
		}
	}
}

func (s *Store) queryKeys(ctx context.Context, pk, skPrefix string) ([]keyOnly, Result, error) {
	in := &dynamodb.QueryInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("PK, SK"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}
	if skPrefix == "" {
		in.KeyConditionExpression = aws.String("PK = :pk")
	} else {
		in.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :sk)")
		in.ExpressionAttributeValues[":sk"] = &types.AttributeValueMemberS{Value: skPrefix}
	}
	return runQuery[keyOnly](ctx, s, in, Page{Limit: MaxLimit})
}
