package domain

// ReadState classifies how far a device file has been read.
type ReadState string

const (
	ReadUnknown    ReadState = "unknown"
	ReadUnread     ReadState = "unread"
	ReadInProgress ReadState = "in_progress"
	ReadFully      ReadState = "fully_read"
)

// FileStat is the per-file progress reported by the device.
// PageCount is zero when the device does not report it.
type FileStat struct {
	CurrentPage int
	PageCount   int
}

// DeviceFileState is the transient read state of one article file on the device.
type DeviceFileState struct {
	ID          ArticleID
	Name        string
	Path        string
	CurrentPage int
	NumPages    int
}

// Classify derives the read state. Being on the last page wins over being
// unopened, so a single-page document always counts as fully read. A page past
// the known count means the counts disagree and is treated as in progress.
// An unopened file is unread even when its page count is unknown.
func (s DeviceFileState) Classify() ReadState {
	switch {
	case s.NumPages >= 1 && s.CurrentPage+1 == s.NumPages:
		return ReadFully
	case s.CurrentPage == 0:
		return ReadUnread
	case s.NumPages < 1:
		return ReadUnknown
	default:
		return ReadInProgress
	}
}
