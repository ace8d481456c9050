package packager

//go:generate go tool stringer -type=Kind -linecomment

// Kind specifies how generated output is delivered.
type Kind int

// Supported payload kinds
const (
	KindEpub Kind = iota // epub
	KindZip              // zip
)

// Ext returns file extension for payload kind.
func (k Kind) Ext() string {
	return "." + k.String()
}
