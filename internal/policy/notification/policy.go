// Package notification decides whether a run persists its report and whether
// it notifies anyone.
package notification

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonSuppressed Reason = "suppressed"
	ReasonFirst      Reason = "first_snapshot"
	ReasonChanged    Reason = "content_changed"
	ReasonForced     Reason = "forced_window"
	ReasonUnchanged  Reason = "unchanged"
)

// Inputs is everything the decision depends on.
type Inputs struct {
	HadErrors      bool
	ReportNonEmpty bool
	FirstSnapshot  bool
	ContentChanged bool
	// ForcedWindow is true when the run started inside the daily forced
	// window.
	ForcedWindow bool
	// AlreadySent is true when this run has already notified.
	AlreadySent bool
}

// Decision is the policy's verdict.
type Decision struct {
	Save   bool
	Send   bool
	Reason Reason
}

// Suppressed reports whether the run must neither save nor send: every
// failure left nothing to report.
func Suppressed(hadErrors, reportNonEmpty bool) bool {
	return hadErrors && !reportNonEmpty
}

// Decide applies the policy. Callers evaluate Suppressed before saving, then
// call Decide with the diff results of the saved snapshot.
func Decide(in Inputs) Decision {
	if Suppressed(in.HadErrors, in.ReportNonEmpty) {
		return Decision{Reason: ReasonSuppressed}
	}
	d := Decision{Save: true, Reason: ReasonUnchanged}
	switch {
	case in.FirstSnapshot:
		d.Send, d.Reason = true, ReasonFirst
	case in.ContentChanged:
		d.Send, d.Reason = true, ReasonChanged
	case in.ForcedWindow && !in.AlreadySent:
		d.Send, d.Reason = true, ReasonForced
	}
	return d
}
