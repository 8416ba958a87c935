package workers

import (
	"context"

	"rotabot/internal/rota"
)

// CommentWorker processes pending comment engagement for one channel.
// It returns how many comments were handled; the loop reports that count
// back to the scheduler when signalling completion.
type CommentWorker interface {
	EngageComments(ctx context.Context, ch rota.Channel) (processed int, err error)
}

// ShortsWorker schedules pending shorts for one channel.
type ShortsWorker interface {
	ScheduleShorts(ctx context.Context, ch rota.Channel) error
}

// IndexWorker runs video indexing for one channel.
type IndexWorker interface {
	IndexVideos(ctx context.Context, ch rota.Channel) error
}

// LiveChatWorker serves an active live chat session. It should return when
// the session ends or ctx is cancelled; the loop never signals phase
// completion for live work.
type LiveChatWorker interface {
	ServeLiveChat(ctx context.Context, d rota.Decision) error
}

// Set bundles one worker per activity. Any field may be nil; the loop
// treats a nil worker as an immediate successful no-op.
type Set struct {
	Comments CommentWorker
	Shorts   ShortsWorker
	Index    IndexWorker
	LiveChat LiveChatWorker
}
