package videos

// TagSignal is one weighted signal per distinct tag of a video.
type TagSignal struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	VideoID    string  `gorm:"column:video_id;type:varchar(64);not null;uniqueIndex:idx_tag_signal_video_type" json:"videoId"`
	SignalType string  `gorm:"column:signal_type;type:varchar(255);not null;uniqueIndex:idx_tag_signal_video_type" json:"signalType"`
	Score      float64 `gorm:"column:score;not null" json:"score"`
	CreatedAt  int64   `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
}

func (TagSignal) TableName() string { return "tag_signal" }

// TagWeight is the weight a tag carries for a video; Tag keeps its display casing.
type TagWeight struct {
	ID        uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	VideoID   string  `gorm:"column:video_id;type:varchar(64);not null;uniqueIndex:idx_tag_weight_video_tag" json:"videoId"`
	Tag       string  `gorm:"column:tag;type:varchar(255);not null;uniqueIndex:idx_tag_weight_video_tag;index" json:"tag"`
	Weight    float64 `gorm:"column:weight;not null" json:"weight"`
	CreatedAt int64   `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
}

func (TagWeight) TableName() string { return "tag_weight" }

// VideoScore is the aggregate score of a video; exactly one row per scored video.
type VideoScore struct {
	VideoID   string  `gorm:"column:video_id;type:varchar(64);primaryKey" json:"videoId"`
	Score     float64 `gorm:"column:score;not null" json:"score"`
	CreatedAt int64   `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt"`
}

func (VideoScore) TableName() string { return "video_score" }
