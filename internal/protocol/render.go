package protocol

import (
	"fmt"
	"strings"
)

// String renders m for logs and the decode command.
func (m *Message) String() string {
	if m == nil || m.desc == nil {
		return "<nil message>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s seq=%d flags=%s", m.desc, m.Header.Sequence, m.Header.Flags)
	if len(m.Header.Acks) > 0 {
		fmt.Fprintf(&sb, " acks=%v", m.Header.Acks)
	}
	sb.WriteByte('\n')
	for i := range m.desc.Blocks {
		spec := &m.desc.Blocks[i]
		group := m.groups[i]
		if spec.Repeat == RepeatVariable {
			fmt.Fprintf(&sb, "  [%s] count=%d\n", spec.Name, len(group))
		}
		for j, b := range group {
			if spec.Repeat == RepeatSingle {
				fmt.Fprintf(&sb, "  [%s]\n", spec.Name)
			} else {
				fmt.Fprintf(&sb, "  [%s #%d]\n", spec.Name, j)
			}
			for k, f := range spec.Fields {
				fmt.Fprintf(&sb, "    %-20s %s\n", f.Name, b.values[k])
			}
		}
	}
	return sb.String()
}
