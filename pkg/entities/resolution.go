package entities

// Resolution is the result of resolving a share link. Either Success is set and
// Title, Size and DirectLink are filled, or Reason explains the failure.
type Resolution struct {
	Success    bool
	Title      string
	Size       string // display formatted, e.g. "700MB"
	DirectLink string
	Reason     string
}

func Resolved(title, size, directLink string) Resolution {
	return Resolution{
		Success:    true,
		Title:      title,
		Size:       size,
		DirectLink: directLink,
	}
}

func Unresolved(reason string) Resolution {
	return Resolution{
		Success: false,
		Reason:  reason,
	}
}
