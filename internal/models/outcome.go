package models

// DispatchStatus is the terminal state of one handle in a dispatch request.
type DispatchStatus string

const (
	StatusDelivered  DispatchStatus = "delivered"
	StatusNotFound   DispatchStatus = "not_found"
	StatusSendFailed DispatchStatus = "send_failed"
)

// DispatchOutcome reports what happened to a single handle.
// Outcomes of a request keep the order of the handles that were sent.
type DispatchOutcome struct {
	OK       bool           `json:"ok"`
	Handle   string         `json:"handle"`
	Status   DispatchStatus `json:"status"`
	FileName string         `json:"file_name,omitempty"`
	Size     int64          `json:"size,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func Delivered(file *StagedFile) DispatchOutcome {
	return DispatchOutcome{OK: true, Handle: file.Handle, Status: StatusDelivered, FileName: file.FileName, Size: file.Size}
}

func NotFound(handle string) DispatchOutcome {
	return DispatchOutcome{Handle: handle, Status: StatusNotFound, Error: "file not found"}
}

func SendFailed(file *StagedFile, err error) DispatchOutcome {
	out := DispatchOutcome{Handle: file.Handle, Status: StatusSendFailed, FileName: file.FileName, Size: file.Size}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
