package gfx

// CommandKind identifies which field of a DrawCommand is meaningful,
// Go's usual stand-in for a Rust tagged union.
type CommandKind int

const (
	CmdClear CommandKind = iota
	CmdFillRect
	CmdDrawChar
	CmdDrawString
)

// DrawCommand is one entry in a writer's local command batch (spec.md
// §4.9). Fields unused by Kind are left zero.
type DrawCommand struct {
	Kind CommandKind

	Rect  Region // CmdFillRect, CmdClear (when non-empty, clears that rect only)
	Color Color  // CmdFillRect, CmdClear, foreground for CmdDrawChar/CmdDrawString

	// Row/Col address a character cell within the writer's region;
	// CmdDrawChar/CmdDrawString are expressed in glyph-cell coordinates,
	// not pixels, so flush's coalescing can compare Row/Col directly.
	Row, Col int
	Ch       byte   // CmdDrawChar
	Text     string // CmdDrawString
}

// coalesce merges consecutive CmdDrawChar commands on the same row into a
// single CmdDrawString, per spec.md §4.9's flush() requirement. Commands
// are otherwise left in submission order.
func coalesce(cmds []DrawCommand) []DrawCommand {
	out := make([]DrawCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Kind == CmdDrawChar && len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Kind == CmdDrawString && prev.Color == c.Color && prev.Row == c.Row &&
				prev.Col+len(prev.Text) == c.Col {
				prev.Text += string(c.Ch)
				continue
			}
			if prev.Kind == CmdDrawChar && prev.Color == c.Color && prev.Row == c.Row &&
				prev.Col+1 == c.Col {
				out[len(out)-1] = DrawCommand{
					Kind: CmdDrawString, Color: c.Color, Row: prev.Row, Col: prev.Col,
					Text: string(prev.Ch) + string(c.Ch),
				}
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
