package state

import "fmt"

// Bounds is a screen rectangle in pixels.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// String renders the wire form used in element nodes: "L, T, R, B".
func (b Bounds) String() string {
	return fmt.Sprintf("%d, %d, %d, %d", b.Left, b.Top, b.Right, b.Bottom)
}

// Element is one visible interactive node with its overlay index.
type Element struct {
	Index      int       `json:"index"`
	ResourceID string    `json:"resourceId"`
	ClassName  string    `json:"className"`
	Text       string    `json:"text"`
	Bounds     string    `json:"bounds"`
	Children   []Element `json:"children,omitempty"`
}

// PhoneState summarizes the foreground app and input focus.
type PhoneState struct {
	AppName         string   `json:"appName"`
	PackageName     string   `json:"packageName"`
	CurrentActivity string   `json:"currentActivity"`
	KeyboardVisible bool     `json:"keyboardVisible"`
	IsEditable      bool     `json:"isEditable"`
	FocusedElement  *Element `json:"focusedElement,omitempty"`
}

// PackageInfo describes one installed application.
type PackageInfo struct {
	Label   string `json:"label"`
	Package string `json:"package"`
}

// CaptureResult is the typed outcome of a screenshot capture. Exactly one
// of PNG or Err is set; there is no in-band error encoding.
type CaptureResult struct {
	PNG []byte
	Err error
}
