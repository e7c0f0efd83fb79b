package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// OwnerKind records the stateable owner kind under the key "owner_kind".
func OwnerKind[T ~string](kind T) slog.Attr {
	return slog.String("owner_kind", string(kind))
}

// OwnerID records the stateable owner id under the key "owner_id".
func OwnerID(id string) slog.Attr {
	return slog.String("owner_id", id)
}

// StateID records a state record id under the key "state_id".
func StateID(id string) slog.Attr {
	return slog.String("state_id", id)
}

// StateType records the state type under the key "state_type".
func StateType(name string) slog.Attr {
	return slog.String("state_type", name)
}

// Status records a status under the key "status".
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// PreviousStatus records the replaced status under the key "previous_status".
// An empty status returns an empty Attr.
func PreviousStatus(status string) slog.Attr {
	if status == "" {
		return slog.Attr{}
	}
	return slog.String("previous_status", status)
}

// CallbackID records a callback id under the key "callback_id".
func CallbackID(id string) slog.Attr {
	return slog.String("callback_id", id)
}

// Rules records failed validation rule names under the key "rules".
func Rules(rules []string) slog.Attr {
	return slog.Any("rules", rules)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
