package styles

// Nerd Font icons. Plain consoles fall back to the ASCII set below.
const (
	IconSuccess = "" // nf-fa-check (U+F00C)
	IconError   = "" // nf-fa-times (U+F00D)
	IconWarning = "" // nf-fa-exclamation_triangle (U+F071)
	IconInfo    = "" // nf-fa-info_circle (U+F05A)
	IconSkipped = "" // nf-fa-minus (U+F068)

	IconBullet = "▸"
)

const (
	AsciiSuccess = "[OK]"
	AsciiError   = "[X]"
	AsciiWarning = "[!]"
	AsciiInfo    = "[i]"
	AsciiSkipped = "[-]"
	AsciiBullet  = ">"
)

// Icons selects the glyph set. Serial consoles rarely carry a Nerd Font, so
// the CLI switches to ASCII when stdout is not a terminal.
var Icons = struct {
	Success, Error, Warning, Info, Skipped, Bullet string
}{IconSuccess, IconError, IconWarning, IconInfo, IconSkipped, IconBullet}

// UseASCII switches every icon to its ASCII fallback.
func UseASCII() {
	Icons.Success = AsciiSuccess
	Icons.Error = AsciiError
	Icons.Warning = AsciiWarning
	Icons.Info = AsciiInfo
	Icons.Skipped = AsciiSkipped
	Icons.Bullet = AsciiBullet
}
