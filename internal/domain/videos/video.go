package videos

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Video is the catalog row owned by the content layer. Only the denormalized
// playback fields (Src, Duration, Width, Height) are written by this service.
type Video struct {
	ID        string         `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Tags      datatypes.JSON `gorm:"column:tags" json:"tags"`
	Published bool           `gorm:"column:published;not null;default:false;index" json:"published"`
	Source    string         `gorm:"column:source" json:"source,omitempty"`
	EmbedURL  string         `gorm:"column:embed_url" json:"embedUrl,omitempty"`
	Src       string         `gorm:"column:src" json:"src,omitempty"`
	Duration  *float64       `gorm:"column:duration" json:"duration,omitempty"`
	Width     *int           `gorm:"column:width" json:"width,omitempty"`
	Height    *int           `gorm:"column:height" json:"height,omitempty"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Video) TableName() string { return "videos" }

// TagList decodes Tags. Malformed or missing tag documents yield an empty list.
func (v *Video) TagList() []string {
	if v == nil || len(v.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(v.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// MetadataMap decodes Metadata into a map; never nil.
func (v *Video) MetadataMap() map[string]any {
	out := map[string]any{}
	if v == nil || len(v.Metadata) == 0 {
		return out
	}
	_ = json.Unmarshal(v.Metadata, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// PlaybackFields are the derived fields a maintenance job writes back.
type PlaybackFields struct {
	Src      string   `json:"src"`
	Duration *float64 `json:"duration,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
}
