package guild

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
	"github.com/questline/core/internal/pkg/validate"
	"github.com/questline/core/internal/store"
)

const avatarURLExpiry = 15 * time.Minute

// avatarClient is the slice of S3 the avatar flow needs: a presigned PUT for
// the browser upload and a HEAD to verify what actually landed.
type avatarClient interface {
	PresignPut(ctx context.Context, key, contentType string, size int64, expiry time.Duration) (string, error)
	Head(ctx context.Context, key string) (contentType string, size int64, err error)
}

// S3Avatars implements avatarClient against one bucket.
type S3Avatars struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Avatars(client *s3.Client, bucket string) *S3Avatars {
	return &S3Avatars{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}
}

func (a *S3Avatars) PresignPut(ctx context.Context, key, contentType string, size int64, expiry time.Duration) (string, error) {
	req, err := a.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", kind.Wrap(kind.DependencyDown, "presign upload", err)
	}
	return req.URL, nil
}

func (a *S3Avatars) Head(ctx context.Context, key string) (string, int64, error) {
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", 0, kind.Wrap(kind.DependencyDown, "head avatar object", err)
	}
	return aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), nil
}

// AvatarUploadURL hands a moderator a presigned PUT for a fresh object key.
// The guild row is untouched until Confirm verifies the upload.
func (s *Service) AvatarUploadURL(ctx context.Context, callerID, guildID string, req AvatarUploadRequest) (*AvatarUploadResponse, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !allowedType(contentType, s.avatar.AllowedTypes) {
		verr.Add("content_type", "unsupported image type")
	}
	maxBytes := int64(s.avatar.MaxSizeMB) << 20
	if req.Size <= 0 || req.Size > maxBytes {
		verr.Add("size", fmt.Sprintf("must be between 1 and %d bytes", maxBytes))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}
	if s.avatars == nil {
		return nil, kind.New(kind.DependencyDown, "avatar storage is not configured")
	}

	key := avatarKey(guildID)
	url, err := s.avatars.PresignPut(ctx, key, contentType, req.Size, avatarURLExpiry)
	if err != nil {
		return nil, err
	}
	return &AvatarUploadResponse{
		URL:       url,
		Key:       key,
		ExpiresIn: int(avatarURLExpiry.Seconds()),
	}, nil
}

// AvatarConfirm checks the uploaded object against the declared limits and,
// only then, points the guild at it. A failed check leaves the object in
// place for the bucket lifecycle rule to reap.
func (s *Service) AvatarConfirm(ctx context.Context, callerID, guildID string, req AvatarConfirmRequest) (*models.Guild, error) {
	var verr validate.Errors
	guildID = validate.UUID(&verr, "guild_id", guildID)
	key := strings.TrimSpace(req.Key)
	if key == "" {
		verr.Add("key", "is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(key, avatarKeyPrefix(guildID)) {
		return nil, kind.New(kind.ValidationFailed, "key does not belong to this guild")
	}
	if err := s.requireRole(ctx, guildID, callerID, models.RoleModerator); err != nil {
		return nil, err
	}
	if s.avatars == nil {
		return nil, kind.New(kind.DependencyDown, "avatar storage is not configured")
	}

	contentType, size, err := s.avatars.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	if !allowedType(strings.ToLower(contentType), s.avatar.AllowedTypes) {
		return nil, kind.New(kind.ValidationFailed, "uploaded object has an unsupported content type")
	}
	if maxBytes := int64(s.avatar.MaxSizeMB) << 20; size <= 0 || size > maxBytes {
		return nil, kind.New(kind.ValidationFailed, "uploaded object exceeds the size limit")
	}

	var g models.Guild
	err = store.RetryVersioned(ctx, func(ctx context.Context) error {
		if err := s.st.GetConsistent(ctx, models.GuildPK(guildID), models.GuildMetaSK(guildID), &g); err != nil {
			return err
		}
		g.AvatarKey = key
		g.UpdatedAt = time.Now().UTC()
		return s.st.UpdateWithVersion(ctx, &g, g.Version)
	})
	if err != nil {
		return nil, err
	}
	g.Version++
	return &g, nil
}

func avatarKeyPrefix(guildID string) string {
	return "guilds/" + guildID + "/avatar/"
}

func avatarKey(guildID string) string {
	return avatarKeyPrefix(guildID) + uuid.NewString()
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if contentType == t {
			return true
		}
	}
	return false
}
