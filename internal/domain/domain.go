package domain

import (
	"github.com/yungbote/videocatalog-backend/internal/domain/jobs"
	"github.com/yungbote/videocatalog-backend/internal/domain/videos"
)

const (
	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed

	DefaultMaxRetries = jobs.DefaultMaxRetries
)

type (
	JobRecord = jobs.JobRecord
	JobError  = jobs.JobError
	Actor     = jobs.Actor

	Video          = videos.Video
	PlaybackFields = videos.PlaybackFields
	TagSignal      = videos.TagSignal
	TagWeight      = videos.TagWeight
	VideoScore     = videos.VideoScore
)
