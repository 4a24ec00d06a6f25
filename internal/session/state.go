package session

import (
	"github.com/dustin/go-humanize"
	"github.com/leca/enhance-studio/internal/model"
)

// Action is a single transition of the session state.
type Action interface {
	action()
}

type (
	// FileAccepted replaces the selected file and its preview.
	FileAccepted struct {
		File    model.SelectedFile
		Preview model.PreviewHandle
	}
	// Rejected records a local validation failure without touching
	// anything else.
	Rejected struct {
		Message string
	}
	// ParametersChanged sets the enhancement parameters.
	ParametersChanged struct {
		Params model.EnhancementParameters
	}
	// SubmitStarted marks a request as outstanding.
	SubmitStarted struct {
		Params    model.EnhancementParameters
		PendingID string
	}
	// SubmitSucceeded installs a new result.
	SubmitSucceeded struct {
		Result model.EnhancementResult
	}
	// SubmitFailed records a network or service failure.
	SubmitFailed struct {
		Message string
	}
	// Cleared resets the session.
	Cleared struct{}
)

func (FileAccepted) action()      {}
func (Rejected) action()          {}
func (ParametersChanged) action() {}
func (SubmitStarted) action()     {}
func (SubmitSucceeded) action()   {}
func (SubmitFailed) action()      {}
func (Cleared) action()           {}

// Reduce returns the state that follows s under a. s is never modified;
// pointer fields are replaced, not written through.
func Reduce(s model.SessionState, a Action) model.SessionState {
	switch a := a.(type) {
	case FileAccepted:
		f, p := a.File, a.Preview
		s.File = &f
		s.Preview = &p
		s.Result = nil
		s.Error = ""
		if s.Request != model.StateInFlight {
			s.Request = model.StateIdle
		}
	case Rejected:
		s.Error = a.Message
	case ParametersChanged:
		s.Params = a.Params
	case SubmitStarted:
		s.Params = a.Params
		s.Request = model.StateInFlight
		s.PendingID = a.PendingID
		s.Error = ""
	case SubmitSucceeded:
		r := a.Result
		s.Result = &r
		s.Enhancements++
		s.Error = ""
		s.Request = model.StateSucceeded
		s.PendingID = ""
	case SubmitFailed:
		s.Error = a.Message
		s.Request = model.StateFailed
		s.PendingID = ""
	case Cleared:
		return model.NewSessionState(s.ID, s.CreatedAt)
	}
	return s
}

// View is the render-ready projection of a session state.
type View struct {
	State        model.SessionState `json:"state"`
	RequestState string             `json:"requestState"`
	Processing   bool               `json:"processing"`
	CanSubmit    bool               `json:"canSubmit"`
	ShowResult   bool               `json:"showResult"`
	ShowError    bool               `json:"showError"`
	FileSize     string             `json:"fileSize,omitempty"`
	StatLine     string             `json:"statLine,omitempty"`
	ScaleLabel   string             `json:"scaleLabel,omitempty"`
	ScaleOptions []int              `json:"scaleOptions"`
}

// NewView derives the UI flags from s. A result and an error are never
// shown together, and the previous result is hidden while a request is out.
func NewView(s model.SessionState) View {
	v := View{
		State:        s,
		RequestState: s.Request.String(),
		Processing:   s.Request == model.StateInFlight,
		ShowError:    s.Error != "",
		ScaleOptions: model.ScaleOptions,
	}
	v.CanSubmit = s.File != nil && !v.Processing
	v.ShowResult = s.Result != nil && !v.Processing && !v.ShowError
	if s.File != nil {
		v.FileSize = humanize.Bytes(uint64(s.File.Size))
	}
	if v.ShowResult {
		v.StatLine = s.Result.StatLine()
		v.ScaleLabel = s.Result.ScaleLabel()
	}
	return v
}
