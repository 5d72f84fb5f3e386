package fault

// Sink receives capture and resolution events from the tracker. Multiple
// independent subscribers (alerting, audit, live dashboards) may register;
// delivery is synchronous, in registration order, and one subscriber's
// panic never prevents the others from being notified or the triggering
// operation from completing.
type Sink interface {
	// OnCaptured fires after every capture.
	OnCaptured(rec *Record)

	// OnSeverity fires after every capture with the record's severity.
	OnSeverity(severity Severity, rec *Record)

	// OnCritical fires additionally whenever severity is critical.
	OnCritical(rec *Record)

	// OnResolved fires when a record is marked resolved.
	OnResolved(id, resolvedBy, resolution string)
}

// SinkFuncs adapts plain functions into a Sink; nil fields are skipped.
// Convenient for subscribers that only care about a subset of events.
type SinkFuncs struct {
	Captured func(rec *Record)
	Severity func(severity Severity, rec *Record)
	Critical func(rec *Record)
	Resolved func(id, resolvedBy, resolution string)
}

func (s SinkFuncs) OnCaptured(rec *Record) {
	if s.Captured != nil {
		s.Captured(rec)
	}
}

func (s SinkFuncs) OnSeverity(severity Severity, rec *Record) {
	if s.Severity != nil {
		s.Severity(severity, rec)
	}
}

func (s SinkFuncs) OnCritical(rec *Record) {
	if s.Critical != nil {
		s.Critical(rec)
	}
}

func (s SinkFuncs) OnResolved(id, resolvedBy, resolution string) {
	if s.Resolved != nil {
		s.Resolved(id, resolvedBy, resolution)
	}
}
