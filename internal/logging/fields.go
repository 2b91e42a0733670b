package logging

import "log/slog"

// Field names used across eventd log lines.
const (
	FieldService        = "service"
	FieldRequestID      = "request_id"
	FieldSubscriptionID = "subscription_id"
	FieldMessageID      = "message_id"
	FieldEventID        = "event_id"
	FieldReportID       = "report_id"
	FieldPath           = "path"
	FieldDestination    = "destination"
	FieldPolicy         = "retry_policy"
	FieldOffset         = "offset"
	FieldCount          = "count"
	FieldError          = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func SubscriptionID(id string) slog.Attr {
	return slog.String(FieldSubscriptionID, id)
}

func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func ReportID(id string) slog.Attr {
	return slog.String(FieldReportID, id)
}

func Path(p string) slog.Attr {
	return slog.String(FieldPath, p)
}

func Destination(d string) slog.Attr {
	return slog.String(FieldDestination, d)
}

func Policy(name string) slog.Attr {
	return slog.String(FieldPolicy, name)
}

func Offset(off int64) slog.Attr {
	return slog.Int64(FieldOffset, off)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Error returns an attribute for err. A nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
