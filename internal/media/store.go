package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/logger"
)

// Kind is the resource type of a stored object.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var (
	ErrObjectNotDeleted = errors.New("object was not deleted")
	ErrStoreDisabled    = errors.New("object store is not configured")
)

// ObjectStore deletes one object by public id. Implementations must report
// every failure; nothing is swallowed here.
type ObjectStore interface {
	Delete(ctx context.Context, publicID string, kind Kind) error
}

const destroyTimeoutSeconds = 20

// CloudinaryStore deletes objects through the Cloudinary upload API.
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("init cloudinary: %w", ErrStoreDisabled)
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Upload.Config.API.Timeout = destroyTimeoutSeconds
	cld.Logger.SetLevel(logger.NONE)
	return &CloudinaryStore{cld: cld}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, publicID string, kind Kind) error {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: string(kind),
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("destroy %s %q: %w", kind, publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("destroy %s %q: %s", kind, publicID, res.Error.Message)
	}
	if res.Result != "ok" {
		return fmt.Errorf("destroy %s %q: %w: %s", kind, publicID, ErrObjectNotDeleted, res.Result)
	}
	return nil
}

// NoopStore stands in when no object store credentials are configured.
type NoopStore struct{}

func (NoopStore) Delete(_ context.Context, publicID string, kind Kind) error {
	return fmt.Errorf("destroy %s %q: %w", kind, publicID, ErrStoreDisabled)
}
