package scenefs

import (
	"encoding/json"

	"github.com/peripherialabs/peribus/internal/fsys"
)

// newVarsFile serves the namespace as JSON. Primitives and containers
// appear verbatim; opaque values as "<TypeName object>"; underscore
// names and modules are omitted.
func newVarsFile(s *Surface) *fsys.SnapshotFile {
	return &fsys.SnapshotFile{
		Build: func(fid *fsys.Fid) ([]byte, error) {
			b, err := json.MarshalIndent(s.interp.VarsSnapshot(), "", "  ")
			if err != nil {
				return nil, err
			}
			return append(b, '\n'), nil
		},
	}
}
