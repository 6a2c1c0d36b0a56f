package quest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
)

func (s *Service) CreateTemplate(ctx context.Context, userID string, req CreateTemplateRequest) (*models.QuestTemplate, error) {
	var verr validate.Errors
	title := validate.Text(&verr, "title", req.Title, validate.MaxTitleLen)
	description := validate.OptionalText(&verr, "description", req.Description, validate.MaxDescriptionLen)
	privacy := req.Privacy
	if privacy == "" {
		privacy = models.TemplatePrivate
	}
	privacy = validate.Enum(&verr, "privacy", privacy,
		models.TemplatePublic, models.TemplateFollowers, models.TemplatePrivate)
	rewardXP := validate.IntRange(&verr, "reward_xp", req.RewardXP, validate.MinRewardXP, validate.MaxRewardXP)
	tags := validate.Tags(&verr, "tags", req.Tags)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tpl := models.NewQuestTemplate(userID, uuid.NewString(), title, privacy, now)
	tpl.Description = description
	tpl.RewardXP = rewardXP
	tpl.Tags = tags
	if err := s.st.PutIfAbsent(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *Service) ListTemplates(ctx context.Context, userID string, page store.Page) ([]models.QuestTemplate, store.Result, error) {
	return store.QueryPartition[models.QuestTemplate](ctx, s.st, models.UserPK(userID), models.PrefixTemplate, page)
}

// GetTemplate fetches a template. Another user's template is visible only
// when public; the follower graph lives outside this service, so follower
// visibility is treated as private here.
func (s *Service) GetTemplate(ctx context.Context, callerID, ownerID, templateID string) (*models.QuestTemplate, error) {
	var verr validate.Errors
	templateID = validate.UUID(&verr, "template_id", templateID)
	if ownerID == "" {
		ownerID = callerID
	} else {
		ownerID = validate.UUID(&verr, "owner", ownerID)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var tpl models.QuestTemplate
	if err := s.st.Get(ctx, models.UserPK(ownerID), models.TemplateSK(templateID), &tpl); err != nil {
		return nil, err
	}
	if ownerID != callerID && tpl.Privacy != models.TemplatePublic {
		return nil, kind.New(kind.PermissionDenied, "template is not public")
	}
	return &tpl, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, userID, templateID string, req UpdateTemplateRequest) (*models.QuestTemplate, error) {
	var verr validate.Errors
	templateID = validate.UUID(&verr, "template_id", templateID)
	var title, description, privacy string
	var tags []string
	rewardXP := 0
	if req.Title != nil {
		title = validate.Text(&verr, "title", *req.Title, validate.MaxTitleLen)
	}
	if req.Description != nil {
		description = validate.OptionalText(&verr, "description", *req.Description, validate.MaxDescriptionLen)
	}
	if req.Privacy != nil {
		privacy = validate.Enum(&verr, "privacy", *req.Privacy,
			models.TemplatePublic, models.TemplateFollowers, models.TemplatePrivate)
	}
	if req.RewardXP != nil {
		rewardXP = validate.IntRange(&verr, "reward_xp", *req.RewardXP, validate.MinRewardXP, validate.MaxRewardXP)
	}
	if req.Tags != nil {
		tags = validate.Tags(&verr, "tags", *req.Tags)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var updated *models.QuestTemplate
	err := store.RetryVersioned(ctx, func(ctx context.Context) error {
		var tpl models.QuestTemplate
		if err := s.st.GetConsistent(ctx, models.UserPK(userID), models.TemplateSK(templateID), &tpl); err != nil {
			return err
		}
		if req.Title != nil {
			tpl.Title = title
		}
		if req.Description != nil {
			tpl.Description = description
		}
		if req.Privacy != nil {
			tpl.Privacy = privacy
		}
		if req.RewardXP != nil {
			tpl.RewardXP = rewardXP
		}
		if req.Tags != nil {
			tpl.Tags = tags
		}
		tpl.UpdatedAt = time.Now().UTC()
		if err := s.st.UpdateWithVersion(ctx, &tpl, tpl.Version); err != nil {
			return err
		}
		tpl.Version++
		updated = &tpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, userID, templateID string) error {
	var verr validate.Errors
	templateID = validate.UUID(&verr, "template_id", templateID)
	if err := verr.Err(); err != nil {
		return err
	}
	var tpl models.QuestTemplate
	if err := s.st.Get(ctx, models.UserPK(userID), models.TemplateSK(templateID), &tpl); err != nil {
		return err
	}
	return s.st.Delete(ctx, models.UserPK(userID), models.TemplateSK(templateID))
}

// Instantiate creates a draft quest from a template.
func (s *Service) Instantiate(ctx context.Context, callerID, templateID string, req InstantiateRequest) (*models.Quest, error) {
	tpl, err := s.GetTemplate(ctx, callerID, req.Owner, templateID)
	if err != nil {
		return nil, err
	}

	var verr validate.Errors
	now := time.Now().UTC()
	if req.Deadline != nil {
		validate.Deadline(&verr, "deadline", *req.Deadline, now)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	q := models.NewQuest(callerID, uuid.NewString(), tpl.Title, now)
	q.Description = tpl.Description
	q.RewardXP = tpl.RewardXP
	q.Deadline = req.Deadline
	if err := s.st.PutIfAbsent(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}
