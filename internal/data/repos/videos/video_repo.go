package videos

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

// VideoRepo is the slice of the catalog store the job subsystem depends on.
type VideoRepo interface {
	GetByID(dbc dbctx.Context, id string) (*types.Video, error)
	GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Video, error)
	ListPublished(dbc dbctx.Context) ([]*types.Video, error)
	UpdateDenormalizedFields(dbc dbctx.Context, id string, fields types.PlaybackFields) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{
		db:  db,
		log: baseLog.With("repo", "VideoRepo"),
	}
}

func (r *videoRepo) GetByID(dbc dbctx.Context, id string) (*types.Video, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var v types.Video
	err := dbc.DB(r.db).Where("id = ?", id).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *videoRepo) GetByIDs(dbc dbctx.Context, ids []string) ([]*types.Video, error) {
	var out []*types.Video
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *videoRepo) ListPublished(dbc dbctx.Context) ([]*types.Video, error) {
	var out []*types.Video
	err := dbc.DB(r.db).
		Where("published = ?", true).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *videoRepo) UpdateDenormalizedFields(dbc dbctx.Context, id string, fields types.PlaybackFields) error {
	updates := map[string]interface{}{
		"src":        fields.Src,
		"updated_at": time.Now().UTC(),
	}
	if fields.Duration != nil {
		updates["duration"] = *fields.Duration
	}
	if fields.Width != nil {
		updates["width"] = *fields.Width
	}
	if fields.Height != nil {
		updates["height"] = *fields.Height
	}
	return dbc.DB(r.db).
		Model(&types.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}
