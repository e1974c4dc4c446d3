package xslog

import (
	"log/slog"
	"time"
)

func Error(err error) slog.Attr {
	const errorKey = "error"
	return slog.String(errorKey, err.Error())
}

func ErrorAny(err any) slog.Attr {
	const errorKey = "error"
	return slog.Any(errorKey, err)
}

func SubjectID(id string) slog.Attr {
	const subjectIDKey = "subject_id"
	return slog.String(subjectIDKey, id)
}

func Topic(topic string) slog.Attr {
	const topicKey = "topic"
	return slog.String(topicKey, topic)
}

func EventID(id string) slog.Attr {
	const eventIDKey = "event_id"
	return slog.String(eventIDKey, id)
}

func Category(category string) slog.Attr {
	const categoryKey = "category"
	return slog.String(categoryKey, category)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}

func Status(status string) slog.Attr {
	const statusKey = "status"
	return slog.String(statusKey, status)
}

func State(state string) slog.Attr {
	const stateKey = "state"
	return slog.String(stateKey, state)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Data(data string) slog.Attr {
	const dataKey = "data"
	return slog.String(dataKey, data)
}
